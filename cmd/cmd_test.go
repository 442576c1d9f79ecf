package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/MOE349/tenmil-backend-sub001/models"
)

func TestParsePlanID(t *testing.T) {
	if id, err := parsePlanID("42"); err != nil || id != 42 {
		t.Errorf("got %d, %v", id, err)
	}
	for _, bad := range []string{"0", "-1", "abc", ""} {
		if _, err := parsePlanID(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestHashPasswordCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"admin", "hash-password", "correct horse"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	hash := strings.TrimSpace(out.String())
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("correct horse")); err != nil {
		t.Errorf("hash does not match: %v", err)
	}
}

func TestBeatRejectsUnknownLogLevel(t *testing.T) {
	rootCmd.SetArgs([]string{"beat", "--loglevel", "LOUD"})
	defer rootCmd.SetArgs(nil)
	if err := rootCmd.Execute(); err == nil || !strings.Contains(err.Error(), "loglevel") {
		t.Errorf("expected loglevel error, got %v", err)
	}
	beatLogLevel = "INFO"
}

func TestSetAdminPassword(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := models.MigrateAdminModels(db); err != nil {
		t.Fatal(err)
	}

	created, err := setAdminPassword(db, "ops", "first-password", "admin")
	if err != nil || !created {
		t.Fatalf("expected user to be created, got %v %v", created, err)
	}
	created, err = setAdminPassword(db, "ops", "second-password", "admin")
	if err != nil || created {
		t.Fatalf("expected password update, got %v %v", created, err)
	}

	var user models.AdminUser
	db.Where("username = ?", "ops").First(&user)
	if !user.CheckPassword("second-password") || !user.IsActive {
		t.Errorf("unexpected user: %+v", user)
	}

	if _, err := setAdminPassword(db, "ops", "short", "admin"); err == nil {
		t.Error("expected error for short password")
	}
}
