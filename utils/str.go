package utils

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	isoDateInName = regexp.MustCompile(`20\d{6}`)
	rasterExt     = regexp.MustCompile(`(?i)\.(tif|tiff)$`)
	slugInvalid   = regexp.MustCompile(`[^a-z0-9]+`)
	nonDateChars  = regexp.MustCompile(`[^0-9-]`)
)

func StrToInt(s string) int {
	if s == "" {
		return 0
	}
	i, _ := strconv.Atoi(s)
	return i
}

// 文件名中第一个20yymmdd格式的日期，转为yyyy-mm-dd；无则返回空
func ExtractIsoDate(fileName string) string {
	base := rasterExt.ReplaceAllString(fileName, "")
	m := isoDateInName.FindString(base)
	if m == "" {
		return ""
	}
	return m[:4] + "-" + m[4:6] + "-" + m[6:8]
}

// yyyy-mm-dd -> dd-mm-yyyy，格式不符时原样返回
func FormatDisplayDate(iso string) string {
	if iso == "" {
		return ""
	}
	parts := strings.Split(iso, "-")
	if len(parts) < 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return iso
	}
	return parts[2] + "-" + parts[1] + "-" + parts[0]
}

// 有日期时显示日期，否则显示去掉扩展名的文件名
func FormatRasterLabel(fileName string) string {
	if display := FormatDisplayDate(ExtractIsoDate(fileName)); display != "" {
		return display
	}
	return strings.ReplaceAll(rasterExt.ReplaceAllString(fileName, ""), "_", " ")
}

// 取前10个字符并去掉数字和'-'以外的字符
func NormalizeDate(date string) string {
	if date == "" {
		return ""
	}
	r := []rune(date)
	if len(r) > 10 {
		r = r[:10]
	}
	return nonDateChars.ReplaceAllString(string(r), "")
}

// 去掉变音符号，转小写，非字母数字替换为'-'
func Slugify(label string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, label)
	if err != nil {
		s = label
	}
	s = slugInvalid.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(s, "-")
}
