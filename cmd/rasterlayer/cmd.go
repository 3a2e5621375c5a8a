package main

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/wgdzlh/rasterlayer"
	"github.com/wgdzlh/rasterlayer/gdalsrc"
	"github.com/wgdzlh/rasterlayer/log"
	"github.com/wgdzlh/rasterlayer/snpsrc"
	"github.com/wgdzlh/rasterlayer/utils"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name:       "config",
			usage:      "configuration file location",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name:       "verbose",
			usage:      "log debug messages in development format",
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name:       "force_epsg",
			usage:      "EPSG code overriding the raster metadata (0 = use metadata)",
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name:       "raster_dir",
			usage:      "directory searched recursively for .tif/.tiff rasters",
			defaultVal: "rasters",
			flagsets:   []*pflag.FlagSet{listCmd.Flags(), renderCmd.Flags()},
		},
		{
			name:       "area_dir",
			usage:      "directory holding predefined *.geojson areas",
			defaultVal: "areas",
			flagsets:   []*pflag.FlagSet{areasCmd.Flags(), renderCmd.Flags()},
		},
		{
			name:       "ramp",
			usage:      "color ramp: " + strings.Join(rasterlayer.RampNames(), ", "),
			defaultVal: rasterlayer.DEFAULT_RAMP,
			flagsets:   []*pflag.FlagSet{renderCmd.Flags(), legendCmd.Flags()},
		},
		{
			name:       "area",
			usage:      "id of the area used to mask the overlay",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{renderCmd.Flags()},
		},
		{
			name:       "out",
			shorthand:  "o",
			usage:      "output PNG file",
			defaultVal: "out.png",
			flagsets:   []*pflag.FlagSet{renderCmd.Flags(), legendCmd.Flags()},
		},
		{
			name:       "width",
			usage:      "output width in pixels (0 = native)",
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{renderCmd.Flags(), legendCmd.Flags()},
		},
		{
			name:       "height",
			usage:      "output height in pixels (0 = native)",
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{renderCmd.Flags(), legendCmd.Flags()},
		},
		{
			name:       "smooth",
			usage:      "bilinear display scaling instead of nearest neighbor",
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{renderCmd.Flags()},
		},
		{
			name:       "catalog",
			usage:      "snappy layer catalog JSON; when set the raster argument is read as <layer>@<yyyy-mm-dd>",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{renderCmd.Flags(), infoCmd.Flags(), areasCmd.Flags()},
		},
		{
			name:       "opacity",
			usage:      "overlay opacity in [0,1]",
			defaultVal: rasterlayer.DEFAULT_OPACITY,
			flagsets:   []*pflag.FlagSet{renderCmd.Flags()},
		},
	}

	Cfg = viper.New()
	Cfg.SetEnvPrefix("RASTERLAYER")
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 {
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
			case bool:
				set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
			case int:
				set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
			case float64:
				set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}

	Root.AddCommand(listCmd)
	Root.AddCommand(infoCmd)
	Root.AddCommand(renderCmd)
	Root.AddCommand(areasCmd)
	Root.AddCommand(legendCmd)
}

func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("rasterlayer: problem reading configuration file: %v", err)
		}
	}
	if Cfg.GetBool("verbose") {
		l, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		log.SetLogger(l)
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "rasterlayer",
	Short: "Georeference, reproject, colorize and mask scalar rasters.",
	Long: `rasterlayer turns time-stamped scalar rasters into display-ready RGBA overlays.
Configuration can be changed with a configuration file (--config), with
command-line arguments, or with environment variables in the format
'RASTERLAYER_var' where 'var' is the name of the option.`,
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List rasters in the raster directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := utils.ListRasterFiles(Cfg.GetString("raster_dir"))
		if err != nil {
			return err
		}
		for _, f := range files {
			cmd.Printf("%s\t%s\n", utils.FormatRasterLabel(filepath.Base(f)), f)
		}
		return nil
	},
	DisableAutoGenTag: true,
}

var infoCmd = &cobra.Command{
	Use:   "info <raster>",
	Short: "Print the georeference of a raster",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tb := newToolbox(nil)
		key, src, err := openSource(args[0], tb.Registry())
		if err != nil {
			return err
		}
		grid, meta, err := src.ReadRaster(cmd.Context())
		if err != nil {
			return err
		}
		ref := tb.GeoCache().Resolve(key, grid.Width, grid.Height, meta, Cfg.GetInt("force_epsg"))
		cmd.Printf("size:        %dx%d\n", ref.Width, ref.Height)
		cmd.Printf("epsg:        %d\n", ref.EPSG)
		cmd.Printf("raster type: %s\n", ref.RasterType)
		cmd.Printf("bbox source: %s\n", ref.BBoxSource)
		cmd.Printf("pixel model: %s\n", ref.PixelModel)
		cmd.Printf("bbox:        %v\n", ref.BBox)
		cmd.Printf("bounds:      %s\n", rasterlayer.BoundsToWkt(ref.Bounds))
		cmd.Printf("proj def:    %v\n", ref.ProjectionDefined)
		if ref.NeedsReprojection() {
			w, h := rasterlayer.ReprojectSize(grid.Width, grid.Height, rasterlayer.MAX_REPROJECT_WIDTH)
			cmd.Printf("reproject:   %dx%d -> %dx%d\n", grid.Width, grid.Height, w, h)
		}
		return nil
	},
	DisableAutoGenTag: true,
}

var renderCmd = &cobra.Command{
	Use:   "render <raster>",
	Short: "Render a raster overlay to PNG",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		areas := rasterlayer.NewAreaStore()
		if _, err := areas.LoadDir(Cfg.GetString("area_dir")); err != nil {
			log.Warn("some areas could not be loaded", zap.Error(err))
		}
		tb := newToolbox(areas)
		if files, err := utils.ListRasterFiles(Cfg.GetString("raster_dir")); err == nil {
			tb.AddCatalog(files...)
		}
		key, src, err := openSource(args[0], tb.Registry())
		if err != nil {
			return err
		}
		if id := Cfg.GetString("area"); id != "" && tb.SetActiveArea(id) == "" {
			log.Warn("unknown area, rendering unmasked", zap.String("area", id))
		}
		entry, err := tb.Show(cmd.Context(), key, src)
		if err != nil {
			return err
		}
		if err = tb.SetOpacity(key, Cfg.GetFloat64("opacity")); err != nil {
			return err
		}
		img, err := tb.DisplayImage(key, Cfg.GetInt("width"), Cfg.GetInt("height"))
		if err != nil {
			return err
		}
		if err = writePNG(Cfg.GetString("out"), img); err != nil {
			return err
		}
		cmd.Println(entry.Status)
		cmd.Printf("bounds: %s\n", rasterlayer.BoundsToWkt(entry.Bounds))
		return nil
	},
	DisableAutoGenTag: true,
}

var areasCmd = &cobra.Command{
	Use:   "areas [raster]",
	Short: "List predefined areas, optionally only those overlapping a raster",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		areas := rasterlayer.NewAreaStore()
		n, err := areas.LoadDir(Cfg.GetString("area_dir"))
		if err != nil {
			log.Warn("some areas could not be loaded", zap.Int("loaded", n), zap.Error(err))
		}
		list := areas.List()
		if len(args) == 1 {
			tb := newToolbox(areas)
			key, src, err := openSource(args[0], tb.Registry())
			if err != nil {
				return err
			}
			grid, meta, err := src.ReadRaster(cmd.Context())
			if err != nil {
				return err
			}
			ref := tb.GeoCache().Resolve(key, grid.Width, grid.Height, meta, Cfg.GetInt("force_epsg"))
			list = areas.Intersecting(ref.Bounds)
		}
		for _, a := range list {
			cmd.Printf("%s\t%s\t%d features\n", a.ID, a.Label, len(a.Features))
		}
		return nil
	},
	DisableAutoGenTag: true,
}

var legendCmd = &cobra.Command{
	Use:   "legend",
	Short: "Render the color ramp legend to PNG",
	RunE: func(cmd *cobra.Command, args []string) error {
		ramp, _ := rasterlayer.RampByName(Cfg.GetString("ramp"))
		w, h := Cfg.GetInt("width"), Cfg.GetInt("height")
		if w <= 0 {
			w = 256
		}
		if h <= 0 {
			h = 16
		}
		return writePNG(Cfg.GetString("out"), rasterlayer.Legend(ramp, w, h))
	},
	DisableAutoGenTag: true,
}

func newToolbox(areas *rasterlayer.AreaStore) *rasterlayer.OverlayToolbox {
	return rasterlayer.NewOverlayToolbox(areas,
		rasterlayer.WithForceEPSG(Cfg.GetInt("force_epsg")),
		rasterlayer.WithRamp(Cfg.GetString("ramp")),
		rasterlayer.WithSmoothing(Cfg.GetBool("smooth")),
	)
}

// 有catalog时按<layer>@<date>读取snappy网格，否则用GDAL读取文件
func openSource(arg string, reg *rasterlayer.ProjectionRegistry) (key string, src rasterlayer.RasterSource, err error) {
	catalog := Cfg.GetString("catalog")
	if catalog == "" {
		return arg, gdalsrc.Open(arg), nil
	}
	name, date, ok := strings.Cut(arg, "@")
	if !ok {
		err = fmt.Errorf("rasterlayer: expected <layer>@<yyyy-mm-dd>, got %q", arg)
		return
	}
	lyrs, err := snpsrc.ReadLayers(catalog)
	if err != nil {
		return
	}
	s, err := lyrs.Source(filepath.Dir(catalog), name, date)
	if err != nil {
		return
	}
	if e := s.Layer.RegisterProjection(reg); e != nil {
		log.Warn("layer proj4 rejected", zap.String("layer", name), zap.Error(e))
	}
	return s.Key(), s, nil
}

func writePNG(path string, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return
	}
	defer func() {
		if e := f.Close(); err == nil {
			err = e
		}
	}()
	return png.Encode(f, img)
}

func run(ctx context.Context) error {
	defer log.Sync()
	return Root.ExecuteContext(ctx)
}
