package stand

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/queryfan/queryfan/internal/config"
)

func TestBuildRegistrySkipsMisconfiguredStands(t *testing.T) {
	t.Parallel()

	confs := map[string]config.StandConf{
		"prod-pg": {
			Vendor: "postgres", DBName: "app", User: "svc",
			Password: "secret", Host: "db.internal", Port: 5432,
		},
		"local-file": {Vendor: "sqlite", Path: "data/app.db"},
		"docs":       {Vendor: "mongo", Host: "mongodb://127.0.0.1:27017", DB: "app", Collection: "events"},
		"no-vendor":  {Path: "x.db"},
		"bad-vendor": {Vendor: "oracle", Host: "h", Port: 1521},
		"pg-missing": {Vendor: "postgres", DBName: "app"},
	}

	r := BuildRegistry(confs)
	if r.Len() != 3 {
		t.Fatalf("expected 3 usable stands, got %d", r.Len())
	}

	want := []string{"docs", "local-file", "prod-pg"}
	if !reflect.DeepEqual(r.Names(), want) {
		t.Fatalf("Names() = %v, want %v", r.Names(), want)
	}

	for _, name := range []string{"no-vendor", "bad-vendor", "pg-missing"} {
		if _, ok := r.Get(name); ok {
			t.Fatalf("misconfigured stand %q was registered", name)
		}
	}
}

func TestBuildRegistryAssignsSyntaxByVendor(t *testing.T) {
	t.Parallel()

	r := BuildRegistry(map[string]config.StandConf{
		"rel": {Vendor: "sqlite", Path: "a.db"},
		"doc": {Vendor: "mongo", Host: "mongodb://127.0.0.1:27017", DB: "d", Collection: "c"},
	})

	rel, ok := r.Get("rel")
	if !ok || rel.Syntax != SyntaxRelational {
		t.Fatalf("sqlite stand: %+v", rel)
	}
	doc, ok := r.Get("doc")
	if !ok || doc.Syntax != SyntaxDocument {
		t.Fatalf("mongo stand: %+v", doc)
	}
}

func TestNewAdapterReportsAllMissingKeys(t *testing.T) {
	t.Parallel()

	_, _, err := newAdapter(config.StandConf{Vendor: "postgres", DBName: "app", Host: "h"})
	if err == nil {
		t.Fatal("expected missing-keys error")
	}
	msg := err.Error()
	for _, key := range []string{"password", "port", "user"} {
		if !strings.Contains(msg, key) {
			t.Fatalf("error %q does not name missing key %q", msg, key)
		}
	}
	if strings.Contains(msg, "dbname") || strings.Contains(msg, "host") {
		t.Fatalf("error %q names a key that was present", msg)
	}
}

func TestStandExecuteRunsConnectThenFetch(t *testing.T) {
	t.Parallel()

	path := seedSQLiteFixture(t)
	r := BuildRegistry(map[string]config.StandConf{
		"fixture": {Vendor: "sqlite", Path: path},
	})
	defer r.Close()

	s, ok := r.Get("fixture")
	if !ok {
		t.Fatal("fixture stand missing")
	}

	records, err := s.Execute(context.Background(), "SELECT customer FROM orders ORDER BY id", 1)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(records) != 1 || records[0]["customer"] != "ada" {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestRegistryAllSortedByName(t *testing.T) {
	t.Parallel()

	r := BuildRegistry(map[string]config.StandConf{
		"zeta":  {Vendor: "sqlite", Path: "z.db"},
		"alpha": {Vendor: "sqlite", Path: "a.db"},
	})

	all := r.All()
	if len(all) != 2 || all[0].Name != "alpha" || all[1].Name != "zeta" {
		t.Fatalf("All() not sorted: %v", []string{all[0].Name, all[1].Name})
	}
}
