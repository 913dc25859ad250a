package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/speednet-khulna/messenger-bot/internal/model"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()

	out := map[string]Store{"memory": NewMemory()}

	sq, err := NewSQLite(filepath.Join(t.TempDir(), "bot.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sq.Close() })
	out["sqlite"] = sq

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		pg, err := NewPostgres(context.Background(), dsn)
		if err != nil {
			t.Logf("Postgres not available: %v", err)
		} else {
			t.Cleanup(func() { pg.Close() })
			out["postgres"] = pg
		}
	}
	return out
}

// newConversation returns a page/sender pair unique to this run so shared
// databases do not leak state between tests.
func newConversation() (string, string) {
	return "page-" + uuid.NewString()[:8], "sender-" + uuid.NewString()[:8]
}

func appendN(t *testing.T, s Store, pageID, senderID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		msg := &model.Message{PageID: pageID, SenderID: senderID, Role: role, Content: fmt.Sprintf("m%d", i)}
		if err := s.Append(context.Background(), msg); err != nil {
			t.Fatal(err)
		}
		if msg.ID == 0 {
			t.Fatal("Append did not assign an id")
		}
	}
}

func TestHistoryOrderAndLimit(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			page, sender := newConversation()
			appendN(t, s, page, sender, 8)

			hist, err := s.History(ctx, page, sender, 3)
			if err != nil {
				t.Fatal(err)
			}
			if len(hist) != 3 {
				t.Fatalf("expected 3 messages, got %d", len(hist))
			}
			for i, want := range []string{"m5", "m6", "m7"} {
				if hist[i].Content != want {
					t.Errorf("hist[%d] = %q, want %q", i, hist[i].Content, want)
				}
			}

			all, err := s.History(ctx, page, sender, 0)
			if err != nil {
				t.Fatal(err)
			}
			if len(all) != 8 {
				t.Errorf("unbounded history = %d, want 8", len(all))
			}

			other, err := s.History(ctx, page, "someone-else", 10)
			if err != nil {
				t.Fatal(err)
			}
			if len(other) != 0 {
				t.Errorf("expected no history for another sender, got %d", len(other))
			}
		})
	}
}

func TestReplaceSummaryAndPrune(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			page, sender := newConversation()
			appendN(t, s, page, sender, 12)

			oldest, err := s.Oldest(ctx, page, sender, 5)
			if err != nil {
				t.Fatal(err)
			}
			if len(oldest) != 5 || oldest[0].Content != "m0" || oldest[4].Content != "m4" {
				t.Fatalf("unexpected oldest batch: %+v", oldest)
			}

			ids := make([]int64, len(oldest))
			for i, m := range oldest {
				ids[i] = m.ID
			}
			if err := s.ReplaceSummaryAndPrune(ctx, page, sender, "summary v1", ids); err != nil {
				t.Fatal(err)
			}

			n, err := s.Count(ctx, page, sender)
			if err != nil {
				t.Fatal(err)
			}
			if n != 7 {
				t.Errorf("Count after prune = %d, want 7", n)
			}

			rest, _ := s.Oldest(ctx, page, sender, 1)
			if len(rest) != 1 || rest[0].Content != "m5" {
				t.Errorf("oldest after prune = %+v, want m5", rest)
			}

			p, err := s.Profile(ctx, page, sender)
			if err != nil {
				t.Fatal(err)
			}
			if p.Summary != "summary v1" {
				t.Errorf("Summary = %q", p.Summary)
			}
		})
	}
}

func TestProfileUpserts(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			page, sender := newConversation()

			p, err := s.Profile(ctx, page, sender)
			if err != nil {
				t.Fatal(err)
			}
			if p.Summary != "" || p.ExternalID != "" {
				t.Fatalf("expected empty profile, got %+v", p)
			}

			for i := 0; i < 2; i++ {
				if err := s.UpsertExternalID(ctx, page, sender, "abc123"); err != nil {
					t.Fatal(err)
				}
			}
			if err := s.UpsertDisplayName(ctx, page, sender, "Rahim Uddin"); err != nil {
				t.Fatal(err)
			}
			if err := s.UpsertSummary(ctx, page, sender, "asked about bills"); err != nil {
				t.Fatal(err)
			}

			p, err = s.Profile(ctx, page, sender)
			if err != nil {
				t.Fatal(err)
			}
			if p.ExternalID != "abc123" || p.DisplayName != "Rahim Uddin" || p.Summary != "asked about bills" {
				t.Errorf("profile = %+v", p)
			}
		})
	}
}

func TestProfileIdempotent(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			page, sender := newConversation()

			read := func() model.Profile {
				t.Helper()
				p, err := s.Profile(ctx, page, sender)
				if err != nil {
					t.Fatal(err)
				}
				return p
			}

			if a, b := read(), read(); a != b {
				t.Errorf("empty profile changed between reads: %+v vs %+v", a, b)
			}

			if err := s.UpsertSummary(ctx, page, sender, "asked about bills"); err != nil {
				t.Fatal(err)
			}
			if err := s.UpsertExternalID(ctx, page, sender, "abc123"); err != nil {
				t.Fatal(err)
			}

			first, second := read(), read()
			if first != second {
				t.Errorf("profile changed between reads: %+v vs %+v", first, second)
			}
			if first.UpdatedAt.IsZero() {
				t.Error("UpdatedAt not set after upsert")
			}
		})
	}
}

func TestTenants(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			page, _ := newConversation()

			if _, err := s.GetTenant(ctx, page); !errors.Is(err, ErrTenantNotFound) {
				t.Fatalf("expected ErrTenantNotFound, got %v", err)
			}

			tenant := model.Tenant{PageID: page, AccessToken: "tok", KnowledgeBase: "## Packages\n10 Mbps", BotName: "Bot", PageName: "Page"}
			if err := s.UpsertTenant(ctx, tenant); err != nil {
				t.Fatal(err)
			}
			tenant.AccessToken = "tok2"
			if err := s.UpsertTenant(ctx, tenant); err != nil {
				t.Fatal(err)
			}

			got, err := s.GetTenant(ctx, page)
			if err != nil {
				t.Fatal(err)
			}
			if got.AccessToken != "tok2" || got.KnowledgeBase != tenant.KnowledgeBase {
				t.Errorf("tenant = %+v", got)
			}

			list, err := s.ListTenants(ctx)
			if err != nil {
				t.Fatal(err)
			}
			found := false
			for _, tt := range list {
				if tt.PageID == page {
					found = true
				}
			}
			if !found {
				t.Error("ListTenants did not include the tenant")
			}

			if err := s.DeleteTenant(ctx, page); err != nil {
				t.Fatal(err)
			}
			if err := s.DeleteTenant(ctx, page); !errors.Is(err, ErrTenantNotFound) {
				t.Errorf("second delete = %v", err)
			}
		})
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if Backend(s) != "memory" {
		t.Errorf("empty DSN backend = %s", Backend(s))
	}

	s, err = Open(ctx, filepath.Join(t.TempDir(), "nested", "bot.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if Backend(s) != "sqlite" {
		t.Errorf("path DSN backend = %s", Backend(s))
	}
	if err := s.Ping(ctx); err != nil {
		t.Error(err)
	}
}

func TestSQLiteDSNKeepsQuery(t *testing.T) {
	path, params, err := sqliteDSN("file:bot.db?cache=shared&_pragma=busy_timeout(100)")
	if err != nil {
		t.Fatal(err)
	}
	if path != "file:bot.db" || params.Get("cache") != "shared" {
		t.Errorf("path = %q, params = %v", path, params)
	}
	pragmas := params["_pragma"]
	if len(pragmas) != 2 || pragmas[0] != "busy_timeout(100)" || pragmas[1] != "journal_mode(WAL)" {
		t.Errorf("pragmas = %v", pragmas)
	}

	if _, _, err := sqliteDSN("?cache=shared"); err == nil {
		t.Error("empty path should be rejected")
	}
}

func TestSQLiteInMemory(t *testing.T) {
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctx := context.Background()
	page, sender := newConversation()
	appendN(t, s, page, sender, 3)

	// Concurrent readers must all see the migrated schema and the rows.
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func() {
			n, err := s.Count(ctx, page, sender)
			if err == nil && n != 3 {
				err = fmt.Errorf("count = %d, want 3", n)
			}
			errs <- err
		}()
	}
	for i := 0; i < 4; i++ {
		if err := <-errs; err != nil {
			t.Error(err)
		}
	}
}
