// Package testutil provides test database and configuration helpers.
package testutil

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/qaforum/config"
	"github.com/cppla/qaforum/models"
	"github.com/cppla/qaforum/utils"
)

// TestJWTSecret signs tokens issued during tests.
const TestJWTSecret = "test-secret"

// GetTestConfig returns the configuration shared by tests.
func GetTestConfig() config.AppConfig {
	return config.AppConfig{
		JWTSecret:          TestJWTSecret,
		GinMode:            "test",
		DBDriver:           "sqlite",
		RateLimitPerMinute: 600,
		ListPageSize:       20,
		AdminUsernames:     []string{"admin"},
	}
}

// SetupTestDB installs the test configuration and returns a migrated in-memory database
// private to t. It is closed when the test ends.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	config.Set(GetTestConfig())

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := config.OpenDatabase("sqlite", dsn, "silent")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := config.Migrate(db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// CreateUser inserts a user holding the given permission codenames.
func CreateUser(t *testing.T, db *gorm.DB, username string, codenames ...string) models.User {
	t.Helper()
	user := models.User{Username: username, Provider: "local"}
	if len(codenames) > 0 {
		if err := db.Where("codename IN ?", codenames).Find(&user.Permissions).Error; err != nil {
			t.Fatalf("load permissions: %v", err)
		}
		if len(user.Permissions) != len(codenames) {
			t.Fatalf("unknown permission in %v", codenames)
		}
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return user
}

// CreateQuestion inserts a question owned by owner.
func CreateQuestion(t *testing.T, db *gorm.DB, owner models.User, text string, pubDate time.Time) models.Question {
	t.Helper()
	q := models.Question{Text: text, PubDate: pubDate, UserID: owner.ID}
	if err := db.Create(&q).Error; err != nil {
		t.Fatalf("create question: %v", err)
	}
	return q
}

// CreateAnswer inserts an answer with a starting vote count.
func CreateAnswer(t *testing.T, db *gorm.DB, q models.Question, owner models.User, text string, votes uint) models.Answer {
	t.Helper()
	a := models.Answer{Text: text, Votes: votes, QuestionID: q.ID, UserID: owner.ID}
	if err := db.Create(&a).Error; err != nil {
		t.Fatalf("create answer: %v", err)
	}
	return a
}

// CreateComment inserts a comment on an answer.
func CreateComment(t *testing.T, db *gorm.DB, a models.Answer, owner models.User, text string) models.Comment {
	t.Helper()
	c := models.Comment{Text: text, AnswerID: a.ID, UserID: owner.ID}
	if err := db.Create(&c).Error; err != nil {
		t.Fatalf("create comment: %v", err)
	}
	return c
}

// BearerFor returns an Authorization header value for user.
func BearerFor(t *testing.T, user models.User) string {
	t.Helper()
	token, err := utils.GenerateToken(user.ID, user.Username)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return "Bearer " + token
}
