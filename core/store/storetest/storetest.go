// Package storetest opens migrated sqlite databases for tests.
package storetest

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"incidentreg/config"
	"incidentreg/core/store"
	"incidentreg/core/utils"
)

func Open(t testing.TB) *store.DB {
	t.Helper()
	cfg := &config.AppConfig{DBDriver: "sqlite", DBPath: filepath.Join(t.TempDir(), "incidentreg.db")}
	logger := utils.NewLoggerWithOptions(io.Discard, "text", "error")
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := store.ApplyMigrations(context.Background(), db, logger); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// Fixture is a region with one school, enough to hold incidents.
type Fixture struct {
	Region   *store.Region
	School   *store.School
	District *store.SchoolDistrict
}

func Seed(t testing.TB, db *store.DB, regionName string) Fixture {
	t.Helper()
	ctx := context.Background()
	regions := store.NewRegionsStore(db)
	incidents := store.NewIncidentsStore(db)
	region, err := regions.CreateRegionWithGroup(ctx, regionName, slugish(regionName), regionName+" Admins")
	if err != nil {
		t.Fatalf("seed region: %v", err)
	}
	district := &store.SchoolDistrict{Name: regionName + " School District"}
	if _, err := incidents.CreateDistrict(ctx, district); err != nil {
		t.Fatalf("seed district: %v", err)
	}
	school := &store.School{Name: regionName + " High", DistrictID: &district.ID, IsPublic: true, IsHigh: true}
	if _, err := incidents.CreateSchool(ctx, school); err != nil {
		t.Fatalf("seed school: %v", err)
	}
	return Fixture{Region: region, School: school, District: district}
}

func slugish(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '-')
		}
	}
	return string(out)
}
