// Package moodle is a minimal client for the Moodle Web Services REST API,
// covering the calls the quiz bot needs: question sets, attempt submission,
// and course/quiz discovery.
package moodle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"matrix-quiz-bot/internal/domain"
)

const restPath = "/webservice/rest/server.php"

// Client talks to one Moodle instance with a fixed web-service token.
type Client struct {
	serverURL  string
	token      string
	httpClient *http.Client
	log        *logrus.Entry
}

func NewClient(serverURL, token string, log *logrus.Entry) *Client {
	return &Client{
		serverURL:  strings.TrimRight(serverURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log,
	}
}

// Course is one course the student is enrolled in.
type Course struct {
	ID        int64  `json:"id"`
	FullName  string `json:"fullname"`
	ShortName string `json:"shortname"`
}

// CourseQuiz is one quiz offered within a course.
type CourseQuiz struct {
	ID     int64  `json:"id"`
	Course int64  `json:"course"`
	Name   string `json:"name"`
}

type moodleException struct {
	Exception string `json:"exception"`
	ErrorCode string `json:"errorcode"`
	Message   string `json:"message"`
}

// GetUserCourses lists the courses a user is enrolled in.
func (c *Client) GetUserCourses(ctx context.Context, userID string) ([]Course, error) {
	params := url.Values{}
	params.Set("userid", userID)
	var courses []Course
	if err := c.call(ctx, "core_enrol_get_users_courses", params, &courses); err != nil {
		return nil, err
	}
	return courses, nil
}

// GetCourseQuizzes lists the quizzes available in a course.
func (c *Client) GetCourseQuizzes(ctx context.Context, courseID string) ([]CourseQuiz, error) {
	params := url.Values{}
	params.Set("courseids[0]", courseID)
	var resp struct {
		Quizzes []CourseQuiz `json:"quizzes"`
	}
	if err := c.call(ctx, "mod_quiz_get_quizzes_by_courses", params, &resp); err != nil {
		return nil, err
	}
	return resp.Quizzes, nil
}

// LoadQuestions fetches the ordered question set for a quiz. Implements
// the bot's question source contract.
func (c *Client) LoadQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	params := url.Values{}
	params.Set("quizid", quizID)
	var resp struct {
		Questions []domain.Question `json:"questions"`
	}
	if err := c.call(ctx, "mod_quiz_get_quiz_questions", params, &resp); err != nil {
		return nil, err
	}
	return resp.Questions, nil
}

// SubmitAttempt delivers a finished attempt and returns Moodle's receipt.
func (c *Client) SubmitAttempt(ctx context.Context, quizID, studentID string, answers map[string]string) (domain.AttemptReceipt, error) {
	params := url.Values{}
	params.Set("quizid", quizID)
	params.Set("userid", studentID)
	for key, letter := range answers {
		params.Set(fmt.Sprintf("answers[%s]", key), letter)
	}

	var receipt domain.AttemptReceipt
	if err := c.call(ctx, "mod_quiz_submit_attempt", params, &receipt); err != nil {
		return domain.AttemptReceipt{}, err
	}
	if !receipt.Success {
		return domain.AttemptReceipt{}, fmt.Errorf("%w: attempt rejected", domain.ErrBackend)
	}
	c.log.WithFields(logrus.Fields{"quiz": quizID, "user": studentID, "attempt": receipt.AttemptID}).Info("attempt submitted")
	return receipt, nil
}

// call performs one Web Services request. Moodle reports remote failures as
// a 200 response carrying an exception object, so both transport and
// payload errors are checked here.
func (c *Client) call(ctx context.Context, function string, params url.Values, out interface{}) error {
	form := url.Values{}
	form.Set("wstoken", c.token)
	form.Set("wsfunction", function)
	form.Set("moodlewsrestformat", "json")
	for key, values := range params {
		for _, value := range values {
			form.Add(key, value)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+restPath, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WithField("function", function).WithError(err).Error("moodle request failed")
		return fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", domain.ErrBackend, res.StatusCode)
	}

	if bytes.HasPrefix(bytes.TrimSpace(body), []byte("{")) {
		var exc moodleException
		if err := json.Unmarshal(body, &exc); err == nil && exc.Exception != "" {
			c.log.WithFields(logrus.Fields{"function": function, "errorcode": exc.ErrorCode}).Error("moodle api error")
			return fmt.Errorf("%w: %s", domain.ErrBackend, exc.Message)
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", function, err)
	}
	return nil
}
