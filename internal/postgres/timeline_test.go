package postgres_test

import (
	"context"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lazypower/recall/internal/engine"
	"github.com/lazypower/recall/internal/memory"
	"github.com/lazypower/recall/internal/postgres"
)

var _ engine.TemporalStore = (*postgres.Timeline)(nil)

// dsn returns the PostgreSQL connection string from environment or skips the test.
func dsn() string {
	v := os.Getenv("RECALL_TEST_POSTGRES_DSN")
	if v == "" {
		Skip("RECALL_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	return v
}

func entry(id, ts string) memory.Record {
	return memory.Record{ID: id, Timestamp: ts, User: "bob", Project: "apollo", Content: "log " + id, Type: memory.TypeTicket}
}

var _ = Describe("Timeline", func() {
	var (
		tl  *postgres.Timeline
		ctx context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		tl, err = postgres.Open(ctx, dsn())
		Expect(err).NotTo(HaveOccurred())
		Expect(tl.Truncate(ctx)).To(Succeed())
	})

	AfterEach(func() {
		if tl != nil {
			tl.Close()
		}
	})

	It("returns an error for an unreachable server", func() {
		_, err := postgres.Open(ctx, "host=invalid port=9999 user=bad dbname=bad sslmode=disable connect_timeout=1")
		Expect(err).To(HaveOccurred())
	})

	It("returns records after the floor newest first, future-dated included", func() {
		future := time.Now().UTC().AddDate(1, 0, 0).Format(time.RFC3339)
		Expect(tl.Append(ctx, entry("jan", "2024-01-10T00:00:00Z"))).To(Succeed())
		Expect(tl.Append(ctx, entry("feb", "2024-02-10T00:00:00Z"))).To(Succeed())
		Expect(tl.Append(ctx, entry("mar", "2024-03-10T00:00:00Z"))).To(Succeed())
		Expect(tl.Append(ctx, entry("next", future))).To(Succeed())
		Expect(tl.Append(ctx, entry("bad", "yesterday"))).To(Succeed())

		got, err := tl.Since(ctx, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(memory.IDs(got)).To(Equal([]string{"next", "mar", "feb"}))
		Expect(got[1].Source).To(Equal(memory.SourceTemporal))
		Expect(got[1].Type).To(Equal(memory.TypeTicket))
	})

	It("ignores duplicate appends and honors the limit", func() {
		Expect(tl.Append(ctx, entry("a", "2024-01-01T00:00:00Z"))).To(Succeed())
		dup := entry("a", "2024-01-01T00:00:00Z")
		dup.Content = "changed"
		Expect(tl.Append(ctx, dup)).To(Succeed())
		Expect(tl.Append(ctx, entry("b", "2024-01-02T00:00:00Z"))).To(Succeed())

		got, err := tl.Since(ctx, time.Time{}, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(memory.IDs(got)).To(Equal([]string{"b"}))

		all, err := tl.Since(ctx, time.Time{}, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(all[1].Content).To(Equal("log a"))
	})
})
