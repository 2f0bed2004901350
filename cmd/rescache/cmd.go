package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/rescache"
	"github.com/unkn0wn-root/rescache/codec"
	rzap "github.com/unkn0wn-root/rescache/log/zap"
)

type globalFlags struct {
	config   string
	driver   string
	prefix   string
	boltPath string
	redis    []string
	logLevel string
	strict   bool
}

func newRootCmd() *cobra.Command {
	var g globalFlags
	root := &cobra.Command{
		Use:          "rescache",
		Short:        "Inspect and maintain a rescache backend",
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.config, "config", "", "YAML config file (default: CACHE_* environment)")
	pf.StringVar(&g.driver, "driver", "", "backend technology: redis, memory, bigcache, bolt, none")
	pf.StringVar(&g.prefix, "prefix", "", "key prefix")
	pf.StringVar(&g.boltPath, "bolt-path", "", "bolt database file")
	pf.StringSliceVar(&g.redis, "redis", nil, "redis address (repeatable)")
	pf.StringVar(&g.logLevel, "log-level", "warn", "debug, info, warn or error")
	pf.BoolVar(&g.strict, "strict", true, "fail instead of degrading when the backend is unusable")

	root.AddCommand(
		probeCmd(&g),
		getCmd(&g),
		setCmd(&g),
		delCmd(&g),
		clearCmd(&g),
		incrCmd(&g),
	)
	return root
}

func (g *globalFlags) runtime(cmd *cobra.Command) (*rescache.Runtime, error) {
	var (
		cfg rescache.Config
		err error
	)
	if g.config != "" {
		cfg, err = rescache.LoadConfigFile(g.config)
	} else {
		cfg, err = rescache.ConfigFromEnv()
	}
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("driver") {
		cfg.Technology = rescache.Technology(g.driver)
	}
	if flags.Changed("prefix") {
		cfg.KeyPrefix = g.prefix
	}
	if flags.Changed("bolt-path") {
		cfg.Bolt.Path = g.boltPath
	}
	if flags.Changed("redis") {
		cfg.Redis.Addrs = g.redis
	}
	cfg.Strict = g.strict

	return rescache.NewRuntime(cfg, rescache.WithLogger(newLogger(g.logLevel))), nil
}

func newLogger(level string) rescache.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.WarnLevel
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.Encoding = "console"
	zcfg.OutputPaths = []string{"stderr"}
	l, err := zcfg.Build()
	if err != nil {
		return rescache.NopLogger{}
	}
	return rzap.New(l)
}

// withCache runs fn against an untyped cache and closes everything after.
func (g *globalFlags) withCache(cmd *cobra.Command, fn func(ctx context.Context, c *rescache.Cache[any]) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := g.runtime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)
	c, err := rescache.New[any](rt, rescache.Options[any]{})
	if err != nil {
		return err
	}
	defer c.Close(ctx)
	return fn(ctx, c)
}

func probeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Build the configured driver and run the health probe",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withCache(cmd, func(ctx context.Context, c *rescache.Cache[any]) error {
				rt := c.Runtime()
				if _, err := rt.Driver(ctx); err != nil {
					return err
				}
				st := rt.State()
				if st.Mode == rescache.ModeDegraded {
					return fmt.Errorf("degraded: %v", st.LastError)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok technology=%s\n", st.Technology)
				return nil
			})
		},
	}
}

func getCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Print a cached value and its stored format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withCache(cmd, func(ctx context.Context, c *rescache.Cache[any]) error {
				v, st, err := c.Lookup(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch st {
				case rescache.Miss:
					fmt.Fprintln(out, "(miss)")
					return nil
				case rescache.NegativeHit:
					fmt.Fprintln(out, "(negative)")
					return nil
				}
				raw, _, err := c.Runtime().Get(ctx, c.Runtime().Config().KeyPrefix+args[0])
				if err != nil {
					return err
				}
				b, err := json.Marshal(v)
				if err != nil {
					b = []byte(fmt.Sprint(v))
				}
				fmt.Fprintf(out, "%s\t%s\n", codec.Format(raw), b)
				return nil
			})
		},
	}
}

func setCmd(g *globalFlags) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Store a value (parsed as JSON when valid, else as a string)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var v any
			if err := json.Unmarshal([]byte(args[1]), &v); err != nil {
				v = args[1]
			}
			return g.withCache(cmd, func(ctx context.Context, c *rescache.Cache[any]) error {
				ok, err := c.Set(ctx, args[0], v, ttl)
				if err != nil {
					return err
				}
				if !ok {
					return errors.New("write not stored")
				}
				fmt.Fprintln(cmd.OutOrStdout(), "OK")
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "entry TTL (0 = configured default)")
	return cmd
}

func delCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "del KEY",
		Short: "Delete a key and its negative marker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withCache(cmd, func(ctx context.Context, c *rescache.Cache[any]) error {
				ok, err := c.Delete(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ok)
				return nil
			})
		},
	}
}

func clearCmd(g *globalFlags) *cobra.Command {
	var allowAll bool
	cmd := &cobra.Command{
		Use:   "clear PATTERN",
		Short: "Delete every key matching prefix+PATTERN",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withCache(cmd, func(ctx context.Context, c *rescache.Cache[any]) error {
				target := c
				if allowAll {
					all, err := rescache.New[any](c.Runtime(), rescache.Options[any]{AllowClearAll: true})
					if err != nil {
						return err
					}
					defer all.Close(ctx)
					target = all
				}
				n, err := target.Clear(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d\n", n)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&allowAll, "allow-all", false, "permit a match-everything pattern without a key prefix")
	return cmd
}

func incrCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "incr KEY [DELTA]",
		Short: "Apply DELTA (default 1) to a native counter",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta := int64(1)
			if len(args) == 2 {
				d, err := strconv.ParseInt(args[1], 10, 64)
				if err != nil {
					return fmt.Errorf("delta: %w", err)
				}
				delta = d
			}
			return g.withCache(cmd, func(ctx context.Context, c *rescache.Cache[any]) error {
				rt := c.Runtime()
				n, err := rt.IncrBy(ctx, rt.Config().KeyPrefix+args[0], delta)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			})
		},
	}
}
