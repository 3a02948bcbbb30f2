package commands

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/orm/internal/blog"
	"github.com/conduit-lang/orm/internal/cli/ui"
	"github.com/conduit-lang/orm/internal/config"
	"github.com/conduit-lang/orm/internal/logging"
	"github.com/conduit-lang/orm/internal/orm/repository"
	"github.com/conduit-lang/orm/internal/orm/schema"
	"github.com/conduit-lang/orm/internal/orm/sqlexec"
)

// globalOptions holds the persistent flags shared by every subcommand
type globalOptions struct {
	configPath string
	driver     string
	dsn        string
	noColor    bool
	metrics    bool
}

// load resolves the configuration with flag overrides applied and builds
// the blog registry under the configured naming strategy.
func (o *globalOptions) load() (*config.Config, *schema.Registry, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.driver != "" {
		cfg.Database.Driver = o.driver
	}
	if o.dsn != "" {
		cfg.Database.DSN = o.dsn
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	reg, err := blog.NewRegistry(schema.WithNaming(cfg.NamingStrategy()))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build registry: %w", err)
	}
	return cfg, reg, nil
}

// session is an open database plus everything needed to build repositories
type session struct {
	opts    *globalOptions
	cfg     *config.Config
	reg     *schema.Registry
	logger  *zap.Logger
	db      *sqlexec.DB
	metrics *prometheus.Registry
}

func (o *globalOptions) open() (*session, error) {
	cfg, reg, err := o.load()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, err
	}

	metrics := prometheus.NewRegistry()
	db, err := sqlexec.Open(cfg.Database.Driver, cfg.Database.DSN,
		sqlexec.WithLogger(logger),
		sqlexec.WithSlowThreshold(cfg.Log.SlowThreshold),
		sqlexec.WithMetrics(sqlexec.NewMetrics(metrics)),
	)
	if err != nil {
		logger.Sync()
		return nil, err
	}

	return &session{opts: o, cfg: cfg, reg: reg, logger: logger, db: db, metrics: metrics}, nil
}

// close prints the collected metrics when requested and releases the
// database.
func (s *session) close(cmd *cobra.Command) error {
	defer s.logger.Sync()

	if s.opts.metrics {
		families, err := s.metrics.Gather()
		if err != nil {
			s.logger.Warn("failed to gather metrics", zap.Error(err))
		} else {
			printMetrics(cmd.OutOrStdout(), families, s.opts.noColor)
		}
	}
	return s.db.Close()
}

func (s *session) repository(name string) (*repository.Repository, error) {
	meta, err := resolveEntity(s.reg, name, s.opts.noColor)
	if err != nil {
		return nil, err
	}
	return repository.NewForMeta(meta, s.db, repository.WithLogger(s.logger)), nil
}

// resolveEntity looks an entity up by exact name, then by a unique
// case-insensitive match. Misses carry close-name suggestions.
func resolveEntity(reg *schema.Registry, name string, noColor bool) (*schema.EntityMeta, error) {
	if meta, err := reg.Meta(name); err == nil {
		return meta, nil
	} else if !errors.Is(err, schema.ErrUnknownEntity) {
		return nil, err
	}

	names := reg.Names()
	var folded []string
	for _, n := range names {
		if strings.EqualFold(n, name) {
			folded = append(folded, n)
		}
	}
	if len(folded) == 1 {
		return reg.Meta(folded[0])
	}

	return nil, &suggestError{
		err: fmt.Errorf("%w: %s", schema.ErrUnknownEntity, name),
		opts: ui.ErrorOptions{
			Context:     "unknown entity",
			Problem:     name,
			Suggestions: ui.FindSimilar(name, names),
			Help:        []string{"List entities: ormctl describe"},
			NoColor:     noColor,
		},
	}
}

// suggestError is a lookup failure rendered with ui.FormatError
type suggestError struct {
	err  error
	opts ui.ErrorOptions
}

func (e *suggestError) Error() string {
	if len(e.opts.Suggestions) == 0 {
		return e.err.Error()
	}
	return fmt.Sprintf("%s (did you mean: %s?)", e.err, strings.Join(e.opts.Suggestions, ", "))
}

func (e *suggestError) Unwrap() error {
	return e.err
}

// printMetrics renders counters and histogram sample counts, one row per
// label set.
func printMetrics(w io.Writer, families []*dto.MetricFamily, noColor bool) {
	table := ui.NewTable(w, noColor, "METRIC", "LABELS", "VALUE")
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var value string
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				value = fmt.Sprintf("%g", m.GetCounter().GetValue())
			case dto.MetricType_HISTOGRAM:
				value = fmt.Sprintf("%d samples", m.GetHistogram().GetSampleCount())
			default:
				continue
			}
			table.AddRow(mf.GetName(), labels(m.GetLabel()), value)
		}
	}
	fmt.Fprintln(w)
	table.Render()
}

func labels(pairs []*dto.LabelPair) string {
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, p.GetName()+"="+p.GetValue())
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
