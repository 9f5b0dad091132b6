package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/goliatone/go-query-cache/pkg/di"
	"github.com/goliatone/go-query-cache/querycache"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
)

// Product is the table the demo seeds and queries.
type Product struct {
	bun.BaseModel `bun:"table:products"`

	ID       string `bun:"id,pk"`
	Name     string `bun:"name"`
	Category string `bun:"category"`
	Price    int64  `bun:"price"`
}

// CacheSettings tags every product query with the catalog tag.
func (Product) CacheSettings() querycache.Settings {
	return querycache.Settings{Tags: []string{"catalog"}}
}

var demoCategories = []string{"books", "games", "music"}

func demoCmd(env *cliEnv) *cobra.Command {
	var (
		rows     int
		category string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Seed a products table and show cached reads and flushes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := env.config()
			if err != nil {
				return err
			}
			logger := env.logger(cmd.ErrOrStderr())

			container, err := env.container(cfg, logger)
			if err != nil {
				return err
			}
			defer container.Close()

			db, err := OpenDB(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			return runDemo(commandContext(cmd), cmd.OutOrStdout(), container, db, cfg.Query, demoOptions{
				rows:     rows,
				category: category,
				ttl:      ttl,
			})
		},
	}

	cmd.Flags().IntVar(&rows, "rows", 30, "Number of products to seed")
	cmd.Flags().StringVar(&category, "category", "books", "Category to query")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Minute, "Cache lifetime of the demo query")
	return cmd
}

type demoOptions struct {
	rows     int
	category string
	ttl      time.Duration
}

func runDemo(ctx context.Context, out io.Writer, container *di.Container, db *bun.DB, qcfg QueryConfig, opts demoOptions) error {
	if _, err := db.NewCreateTable().Model((*Product)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create products: %w", err)
	}
	if err := seedProducts(ctx, db, opts.rows); err != nil {
		return err
	}

	factory := container.NewFactory(db, factoryOptions(qcfg)...)
	byCategory := func() *querycache.Builder[Product] {
		return querycache.NewSelect[Product](factory).
			Where("category = ?", opts.category).
			Order("name").
			CacheFor(opts.ttl)
	}

	fmt.Fprintf(out, "key: %s\n", byCategory().CacheKey(querycache.MethodGet, "", ""))

	for i := 1; i <= 2; i++ {
		products, err := byCategory().Get(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "read %d: %d %s products\n", i, len(products), opts.category)
	}

	added := Product{ID: uuid.NewString(), Name: "zz-new", Category: opts.category, Price: 100}
	if _, err := db.NewInsert().Model(&added).Exec(ctx); err != nil {
		return fmt.Errorf("insert product: %w", err)
	}

	tagged, err := byCategory().Flush(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "flushed: tagged=%t\n", tagged)

	products, err := byCategory().Get(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "read 3: %d %s products\n", len(products), opts.category)

	return printMetrics(out, container)
}

func seedProducts(ctx context.Context, db *bun.DB, rows int) error {
	if rows <= 0 {
		return nil
	}

	products := make([]Product, rows)
	for i := range products {
		products[i] = Product{
			ID:       uuid.NewString(),
			Name:     fmt.Sprintf("product-%03d", i),
			Category: demoCategories[i%len(demoCategories)],
			Price:    int64(100 + i),
		}
	}
	if _, err := db.NewInsert().Model(&products).Exec(ctx); err != nil {
		return fmt.Errorf("seed products: %w", err)
	}
	return nil
}

func printMetrics(out io.Writer, container *di.Container) error {
	snapshot, err := container.Metrics().Snapshot()
	if err != nil {
		return err
	}

	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(out, "metrics:")
	for _, name := range names {
		fmt.Fprintf(out, "  %s %v\n", name, snapshot[name])
	}
	return nil
}
