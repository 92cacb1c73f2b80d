package domain

import "time"

// Role values stored on a subject profile.
const (
	RoleUser   = "user"
	RoleAdmin  = "admin"
	RoleTester = "tester"
)

// Totals is the aggregate of all counter shards of a subject.
type Totals struct {
	Answered int64 `json:"totalAnswered"`
	Correct  int64 `json:"totalCorrect"`
}

// CounterShard is one of the N records that together hold a subject's totals.
type CounterShard struct {
	ShardID       string    `json:"shardId,omitempty"`
	AnsweredCount int64     `json:"answeredCount"`
	CorrectCount  int64     `json:"correctCount"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
}

// QuestionState tracks how a subject did on one question over time.
type QuestionState struct {
	QuestionID     string    `json:"questionId"`
	SeenCount      int64     `json:"seenCount"`
	CorrectCount   int64     `json:"correctCount"`
	IncorrectCount int64     `json:"incorrectCount"`
	LastSeen       time.Time `json:"lastSeen"`
}

// AttemptedQuestion is one answer inside a completed session.
type AttemptedQuestion struct {
	QuestionID          string `json:"questionId"`
	SelectedOptionIndex int    `json:"selectedOptionIndex"`
	AnsweredCorrectly   bool   `json:"answeredCorrectly"`
}

// SessionRecord is the immutable summary of a completed quiz session.
// QuizConfig is the filter/mode snapshot the session started with, kept as
// sent.
type SessionRecord struct {
	ID                      string              `json:"-"`
	UserID                  string              `json:"userId"`
	QuizConfig              map[string]any      `json:"quizConfig"`
	Score                   int                 `json:"score"`
	CorrectAnswers          int                 `json:"correctAnswers"`
	IncorrectAnswers        int                 `json:"incorrectAnswers"`
	ActualNumberOfQuestions int                 `json:"actualNumberOfQuestions"`
	QuestionsAttempted      []AttemptedQuestion `json:"questionsAttempted"`
	QuizDate                time.Time           `json:"quizDate"`
}

// Profile is the root record of a tracked subject.
type Profile struct {
	UID                   string     `json:"uid"`
	FirstName             string     `json:"firstName"`
	LastName              string     `json:"lastName"`
	DisplayName           string     `json:"displayName"`
	Email                 string     `json:"email"`
	Status                string     `json:"status"`
	Role                  string     `json:"role"`
	Country               string     `json:"country"`
	Institution           string     `json:"institution"`
	SubscriptionLevel     string     `json:"subscriptionLevel"`
	SubscriptionExpiresAt *time.Time `json:"subscriptionExpiresAt"`
	TotalAnswered         int64      `json:"totalQuestionsAnsweredAllTime"`
	TotalCorrect          int64      `json:"totalCorrectAnswersAllTime"`
	CreatedAt             time.Time  `json:"createdAt"`
	LastUpdatedAt         time.Time  `json:"lastUpdatedAt"`
}

// ProfileInput carries the identity fields sent on profile sync.
type ProfileInput struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Country     string `json:"country"`
	Institution string `json:"institution"`
}

// SubjectSummary is a profile row with resolved totals for admin listings.
type SubjectSummary struct {
	ID                string `json:"id"`
	Email             string `json:"email"`
	DisplayName       string `json:"displayName"`
	Status            string `json:"status"`
	Role              string `json:"role"`
	SubscriptionLevel string `json:"subscriptionLevel"`
	TotalAnswered     int64  `json:"totalQuestionsAnsweredAllTime"`
	TotalCorrect      int64  `json:"totalCorrectAnswersAllTime"`
}

// SubjectPage is one page of SubjectSummary rows.
type SubjectPage struct {
	Subjects   []SubjectSummary `json:"users"`
	TotalCount int              `json:"totalCount"`
}
