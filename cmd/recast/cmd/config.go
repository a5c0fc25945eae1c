package cmd

import (
	"cmp"
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/recast/internal/config"
	"github.com/jmylchreest/recast/pkg/duration"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect recast configuration",
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the effective configuration as YAML",
	Long: `Print the merged configuration: built-in defaults, then the config
file, then RECAST_-prefixed environment variables.

Run it with nothing configured to get a template:

  recast config dump > recast.yaml`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// dumpHeader is printed ahead of the YAML so a dumped file explains its
// own conventions.
const dumpHeader = `# recast configuration
#
# Durations accept compact forms such as 30s, 5m, 1h, or 7d; sizes accept
# 64KB, 5MB, and so on. Every key can also be set through the environment
# with the RECAST_ prefix and underscores: server.port becomes
# RECAST_SERVER_PORT.

`

// toMap renders a config section as a YAML-friendly map, substituting the
// human-readable spellings for durations and byte sizes.
func toMap(v any) map[string]any {
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Pointer {
		val = val.Elem()
	}
	typ := val.Type()

	out := make(map[string]any, typ.NumField())
	for i := range typ.NumField() {
		key := cmp.Or(
			typ.Field(i).Tag.Get("mapstructure"),
			typ.Field(i).Tag.Get("yaml"),
			typ.Field(i).Name,
		)

		switch v := val.Field(i).Interface().(type) {
		case time.Duration:
			out[key] = duration.Format(v)
		case config.ByteSize:
			out[key] = v.String()
		default:
			if val.Field(i).Kind() == reflect.Struct {
				out[key] = toMap(v)
				break
			}
			out[key] = v
		}
	}
	return out
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	rendered, err := yaml.Marshal(toMap(cfg))
	if err != nil {
		return fmt.Errorf("rendering config: %w", err)
	}

	fmt.Print(dumpHeader)
	fmt.Print(string(rendered))
	return nil
}
