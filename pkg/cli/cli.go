// Package cli binds command line flags of cobra commands to environment variables through viper.
package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Opt is a single command line option.
type Opt struct {
	// DestP points to the destination: *string, *int, *bool, *time.Duration or *[]string.
	DestP   any
	Flag    string
	Default any
	Desc    string
}

func NewOpt(destP any, flag string, dflt any, desc string) Opt {
	return Opt{DestP: destP, Flag: flag, Default: dflt, Desc: desc}
}

// Program is a command with options.
type Program struct {
	// Run is invoked by cobra on execute.
	Run func(cmd *cobra.Command, args []string) error

	// Name is the name of the program in help usage and the env var prefix.
	Name  string
	Short string
	Args  cobra.PositionalArgs
	Opts  []Opt
}

// NewEnv returns a viper reading environment variables prefixed with prefix (upper-cased).
//
// "-" in flag names is "_" in environment variable names.
func NewEnv(prefix string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(strings.ToUpper(prefix))
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	return v
}

// NewCommand creates a cobra command whose options can also be given by env vars of v.
//
// Flags given on the command line win over env vars.
func NewCommand(v *viper.Viper, p *Program) *cobra.Command {
	args := p.Args
	if args == nil {
		args = cobra.NoArgs
	}
	cmd := &cobra.Command{
		Use:           p.Name,
		Short:         p.Short,
		Args:          args,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          p.Run,
	}
	BindOptions(v, cmd, p.Opts)
	return cmd
}

// BindOptions adds opts to cmd and registers them with v.
//
// Destinations are filled from v at once, so values from env vars are in place
// before cobra parses the flags.
func BindOptions(v *viper.Viper, cmd *cobra.Command, opts []Opt) {
	bindOptions(v, cmd.Flags(), opts)
}

// BindPersistentOptions is BindOptions for flags inherited by subcommands of cmd.
func BindPersistentOptions(v *viper.Viper, cmd *cobra.Command, opts []Opt) {
	bindOptions(v, cmd.PersistentFlags(), opts)
}

func bindOptions(v *viper.Viper, fs *pflag.FlagSet, opts []Opt) {
	for _, o := range opts {
		switch destP := o.DestP.(type) {
		case *string:
			var d string
			if o.Default != nil {
				d = o.Default.(string)
			}
			fs.StringVar(destP, o.Flag, d, o.Desc)
			mustBindPFlag(v, o.Flag, fs)
			*destP = v.GetString(o.Flag)
		case *int:
			var d int
			if o.Default != nil {
				d = o.Default.(int)
			}
			fs.IntVar(destP, o.Flag, d, o.Desc)
			mustBindPFlag(v, o.Flag, fs)
			*destP = v.GetInt(o.Flag)
		case *bool:
			var d bool
			if o.Default != nil {
				d = o.Default.(bool)
			}
			fs.BoolVar(destP, o.Flag, d, o.Desc)
			mustBindPFlag(v, o.Flag, fs)
			*destP = v.GetBool(o.Flag)
		case *time.Duration:
			var d time.Duration
			if o.Default != nil {
				d = o.Default.(time.Duration)
			}
			fs.DurationVar(destP, o.Flag, d, o.Desc)
			mustBindPFlag(v, o.Flag, fs)
			*destP = v.GetDuration(o.Flag)
		case *[]string:
			var d []string
			if o.Default != nil {
				d = o.Default.([]string)
			}
			fs.StringSliceVar(destP, o.Flag, d, o.Desc)
			mustBindPFlag(v, o.Flag, fs)
			*destP = v.GetStringSlice(o.Flag)
		default:
			panic(fmt.Errorf("unknown destination type %T", o.DestP))
		}
	}
}

func mustBindPFlag(v *viper.Viper, key string, fs *pflag.FlagSet) {
	if err := v.BindPFlag(key, fs.Lookup(key)); err != nil {
		panic(err)
	}
}
