// Package errorbook publishes opaque error records to the error-book
// collaborator on REPAIR events. Records are auto-tagged (error type,
// sign/order heuristics, unit), then handed off on a Redis stream;
// nothing downstream of the publish call is this engine's
// responsibility.
package errorbook

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/edwarddev/tutorcore/common/logger"
)

// ErrorType is the coarse classification bucket assigned to a repair
// event.
type ErrorType string

const (
	ErrorCalculation ErrorType = "CALCULATION"
	ErrorConcept     ErrorType = "CONCEPT"
	ErrorCareless    ErrorType = "CARELESS"
)

// Record is the opaque payload handed to the error book. The core
// never reads it back; it only ever builds and publishes one.
type Record struct {
	StudentID     string
	QuestionID    string
	StudentAnswer string
	CorrectAnswer string
	ErrorType     ErrorType
	Tags          []string
}

// Publisher sends Records to the error book.
type Publisher interface {
	Publish(ctx context.Context, rec Record) error
}

type redisPublisher struct {
	client *redis.Client
	stream string
}

// NewRedisPublisher builds a Publisher backed by a Redis stream.
func NewRedisPublisher(client *redis.Client, stream string) Publisher {
	return &redisPublisher{client: client, stream: stream}
}

func (p *redisPublisher) Publish(ctx context.Context, rec Record) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		StudentID:  &rec.StudentID,
		QuestionID: &rec.QuestionID,
		Component:  "tutorcore.errorbook.publisher",
	})

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"student_id":     rec.StudentID,
			"question_id":    rec.QuestionID,
			"student_answer": rec.StudentAnswer,
			"correct_answer": rec.CorrectAnswer,
			"error_type":     string(rec.ErrorType),
			"tags":           strings.Join(rec.Tags, ","),
		},
	}).Err(); err != nil {
		return fmt.Errorf("errorbook: publish (stream=%s): %w", p.stream, err)
	}

	slog.InfoContext(ctx, "published error record",
		"error_type", rec.ErrorType,
		"tag_count", len(rec.Tags),
		"stream", p.stream)
	return nil
}

// Classifier auto-detects an error's type and tags from the student's
// wrong answer and the correct one. unit, when non-empty, is added as
// a tag so the error book can group records by curriculum unit.
type Classifier struct{}

func NewClassifier() *Classifier { return &Classifier{} }

// Classify builds a fully-tagged Record for a repair event.
func (c *Classifier) Classify(studentID, questionID, studentAnswer, correctAnswer, unit string) Record {
	errType := c.detectErrorType(studentAnswer, correctAnswer)
	tags := c.generateTags(studentAnswer, correctAnswer, errType, unit)

	return Record{
		StudentID:     studentID,
		QuestionID:    questionID,
		StudentAnswer: studentAnswer,
		CorrectAnswer: correctAnswer,
		ErrorType:     errType,
		Tags:          tags,
	}
}

func (c *Classifier) detectErrorType(studentAnswer, correctAnswer string) ErrorType {
	if isCarelessError(studentAnswer, correctAnswer) {
		return ErrorCareless
	}
	if hasNumericDifference(studentAnswer, correctAnswer) {
		return ErrorCalculation
	}
	// Differing answers with no numeric disagreement point at the
	// approach, not the arithmetic.
	return ErrorConcept
}

var typeTagLabels = map[ErrorType]string{
	ErrorCalculation: "calculation-error",
	ErrorConcept:     "concept-error",
	ErrorCareless:    "careless-error",
}

func (c *Classifier) generateTags(studentAnswer, correctAnswer string, errType ErrorType, unit string) []string {
	seen := make(map[string]struct{})
	var tags []string

	add := func(tag string) {
		if tag == "" {
			return
		}
		if _, ok := seen[tag]; ok {
			return
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}

	add(typeTagLabels[errType])
	add(unit)

	if isSignError(studentAnswer, correctAnswer) {
		add("sign-error")
	}
	if isOrderError(studentAnswer, correctAnswer) {
		add("order-error")
	}

	return tags
}

// isCarelessError flags a single-character difference, a pure sign
// flip, or a two-character transposition.
func isCarelessError(studentAnswer, correctAnswer string) bool {
	s := strings.ToLower(strings.TrimSpace(studentAnswer))
	c := strings.ToLower(strings.TrimSpace(correctAnswer))

	if len(s) == len(c) {
		diff := 0
		for i := range s {
			if s[i] != c[i] {
				diff++
			}
		}
		if diff == 1 {
			return true
		}
	}

	if strings.ReplaceAll(s, "-", "") == strings.ReplaceAll(c, "-", "") {
		return true
	}

	if len(s) == 2 && len(c) == 2 && s[0] == c[1] && s[1] == c[0] {
		return true
	}

	return false
}

// isSignError flags exactly one answer carrying a leading minus where
// the digits otherwise match.
func isSignError(studentAnswer, correctAnswer string) bool {
	s := strings.ReplaceAll(studentAnswer, " ", "")
	c := strings.ReplaceAll(correctAnswer, " ", "")

	sNeg := strings.HasPrefix(s, "-")
	cNeg := strings.HasPrefix(c, "-")
	if sNeg == cNeg {
		return false
	}
	return strings.TrimLeft(s, "-") == strings.TrimLeft(c, "-")
}

// isOrderError flags an answer whose characters are a permutation of
// the correct one but not identical to it (digit transposition).
func isOrderError(studentAnswer, correctAnswer string) bool {
	if studentAnswer == correctAnswer {
		return false
	}
	return sortedRunes(strings.ReplaceAll(studentAnswer, " ", "")) ==
		sortedRunes(strings.ReplaceAll(correctAnswer, " ", ""))
}

func sortedRunes(s string) string {
	runes := []rune(s)
	for i := 1; i < len(runes); i++ {
		for j := i; j > 0 && runes[j-1] > runes[j]; j-- {
			runes[j-1], runes[j] = runes[j], runes[j-1]
		}
	}
	return string(runes)
}

// hasNumericDifference reports whether two answer strings, stripped
// to their numeric characters, parse to different numbers. A
// non-numeric answer on either side counts as "not different".
func hasNumericDifference(studentAnswer, correctAnswer string) bool {
	sNum, sOK := extractNumber(studentAnswer)
	cNum, cOK := extractNumber(correctAnswer)
	if !sOK || !cOK {
		return false
	}
	return sNum != cNum
}

func extractNumber(s string) (float64, bool) {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	n, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
