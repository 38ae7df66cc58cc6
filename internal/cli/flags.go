package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// FlagLoader reads configuration values with CLI flag precedence.
// When a flag is explicitly set it wins over the config file and the
// environment. Otherwise viper's priority applies: env > config file > default.
type FlagLoader struct {
	cmd *cobra.Command
	v   *viper.Viper
}

// NewFlagLoader creates a FlagLoader for cmd backed by v.
func NewFlagLoader(cmd *cobra.Command, v *viper.Viper) *FlagLoader {
	return &FlagLoader{cmd: cmd, v: v}
}

// String returns the flag value if explicitly set, otherwise the viper value.
func (f *FlagLoader) String(name string) string {
	if f.cmd.Flags().Changed(name) {
		val, _ := f.cmd.Flags().GetString(name)
		return val
	}
	return f.v.GetString(name)
}

// Int returns the flag value if explicitly set, otherwise the viper value.
func (f *FlagLoader) Int(name string) int {
	if f.cmd.Flags().Changed(name) {
		val, _ := f.cmd.Flags().GetInt(name)
		return val
	}
	return f.v.GetInt(name)
}

// Bool returns the flag value if explicitly set, otherwise the viper value.
func (f *FlagLoader) Bool(name string) bool {
	if f.cmd.Flags().Changed(name) {
		val, _ := f.cmd.Flags().GetBool(name)
		return val
	}
	return f.v.GetBool(name)
}

// Duration returns the flag value if explicitly set, otherwise the viper value.
func (f *FlagLoader) Duration(name string) time.Duration {
	if f.cmd.Flags().Changed(name) {
		val, _ := f.cmd.Flags().GetDuration(name)
		return val
	}
	return f.v.GetDuration(name)
}

// Size parses a byte size such as "500MiB" or "5242880".
func (f *FlagLoader) Size(name string) (int64, error) {
	raw := f.String(name)
	if raw == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("--%s: %w", name, err)
	}
	if n > 1<<62 {
		return 0, fmt.Errorf("--%s: %s is too large", name, raw)
	}
	return int64(n), nil
}
