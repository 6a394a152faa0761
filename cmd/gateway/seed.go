package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	auth "github.com/mind-engage/quizgate/internal/auth/middleware"
	"github.com/mind-engage/quizgate/internal/enrollment"
)

// fixture is the SEED_FILE layout:
//
//	{"users": [{"username": "alice", "password": "...", "role": "student"}],
//	 "modules": [{"id": "mod-1", "course_id": "bio-101", "position": 1}],
//	 "enrollments": [{"id": "enr-1", "course_id": "bio-101", "student_id": "alice"}]}
type fixture struct {
	Users       []seedUser       `json:"users" validate:"dive"`
	Modules     []seedModule     `json:"modules" validate:"dive"`
	Enrollments []seedEnrollment `json:"enrollments" validate:"dive"`
}

type seedUser struct {
	Username     string `json:"username" validate:"required"`
	Password     string `json:"password" validate:"required_without=PasswordHash"`
	PasswordHash string `json:"password_hash"`
	Role         string `json:"role" validate:"required,oneof=student teacher admin"`
}

type seedModule struct {
	ID       string `json:"id" validate:"required"`
	CourseID string `json:"course_id" validate:"required"`
	Position int    `json:"position"`
}

type seedEnrollment struct {
	ID        string `json:"id" validate:"required"`
	CourseID  string `json:"course_id" validate:"required"`
	StudentID string `json:"student_id" validate:"required"`
}

func loadFixture(path string) (fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fixture{}, err
	}
	var fx fixture
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fx); err != nil {
		return fixture{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := validator.New().Struct(fx); err != nil {
		return fixture{}, fmt.Errorf("invalid %s: %w", path, err)
	}
	return fx, nil
}

// applySeed upserts the fixture, so it is safe to apply on every start.
func applySeed(ctx context.Context, path string, be *backend, log logrus.FieldLogger) error {
	fx, err := loadFixture(path)
	if err != nil {
		return err
	}

	for _, u := range fx.Users {
		hash := u.PasswordHash
		if hash == "" {
			if hash, err = auth.HashPassword(u.Password); err != nil {
				return fmt.Errorf("hash password for %s: %w", u.Username, err)
			}
		}
		if err := be.users.Upsert(ctx, auth.User{Username: u.Username, PasswordHash: hash, Role: u.Role}); err != nil {
			return fmt.Errorf("seed user %s: %w", u.Username, err)
		}
	}

	modulesByCourse := map[string][]string{}
	for _, m := range fx.Modules {
		if err := be.catalog.AddModule(ctx, m.ID, m.CourseID, m.Position); err != nil {
			return fmt.Errorf("seed module %s: %w", m.ID, err)
		}
		modulesByCourse[m.CourseID] = append(modulesByCourse[m.CourseID], m.ID)
	}

	now := time.Now().UnixMilli()
	for _, e := range fx.Enrollments {
		if err := be.catalog.Enroll(ctx, e.ID, e.CourseID, e.StudentID, now); err != nil {
			return fmt.Errorf("seed enrollment %s: %w", e.ID, err)
		}
		if be.cache == nil {
			continue
		}
		// a verdict cached before this enrollment existed would still deny it
		for _, moduleID := range modulesByCourse[e.CourseID] {
			ref := enrollment.Ref{EnrollmentID: e.ID, StudentID: e.StudentID, ModuleID: moduleID}
			if err := be.cache.Invalidate(ctx, ref); err != nil {
				log.WithError(err).WithField("enrollment_id", e.ID).Warn("enrollment cache invalidate failed")
			}
		}
	}

	log.WithFields(logrus.Fields{
		"file":        path,
		"users":       len(fx.Users),
		"modules":     len(fx.Modules),
		"enrollments": len(fx.Enrollments),
	}).Info("seed applied")
	return nil
}
