// Package graph reads Microsoft Teams meeting attendance reports through the
// Microsoft Graph API using application (client credentials) permissions.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/noah-isme/attendease-api/pkg/config"
)

const defaultScope = "https://graph.microsoft.com/.default"

// Identity is the participant identity attached to an attendance record.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Interval is a single join/leave span of a participant.
type Interval struct {
	JoinDateTime      *time.Time `json:"joinDateTime"`
	LeaveDateTime     *time.Time `json:"leaveDateTime"`
	DurationInSeconds int        `json:"durationInSeconds"`
}

// AttendanceRecord mirrors the Graph attendanceRecord resource.
type AttendanceRecord struct {
	ID                       string     `json:"id"`
	EmailAddress             string     `json:"emailAddress"`
	Role                     string     `json:"role"`
	TotalAttendanceInSeconds int        `json:"totalAttendanceInSeconds"`
	Identity                 Identity   `json:"identity"`
	AttendanceIntervals      []Interval `json:"attendanceIntervals"`
}

// AttendanceReport mirrors the Graph meetingAttendanceReport resource.
type AttendanceReport struct {
	ID                    string             `json:"id"`
	TotalParticipantCount int                `json:"totalParticipantCount"`
	MeetingStartDateTime  *time.Time         `json:"meetingStartDateTime"`
	MeetingEndDateTime    *time.Time         `json:"meetingEndDateTime"`
	AttendanceRecords     []AttendanceRecord `json:"attendanceRecords"`
}

// APIError is returned for non-2xx Graph responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph api %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Client calls Graph on behalf of a single meeting organizer.
type Client struct {
	baseURL     string
	organizerID string
	http        *http.Client
}

// New builds a client authenticated with the app registration's client secret.
func New(cfg config.GraphConfig) *Client {
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", url.PathEscape(cfg.TenantID)),
		Scopes:       []string{defaultScope},
	}
	hc := cc.Client(context.Background())
	hc.Timeout = cfg.Timeout
	return NewWithHTTPClient(cfg.BaseURL, cfg.OrganizerID, hc)
}

// NewWithHTTPClient builds a client over an already authenticated HTTP client.
func NewWithHTTPClient(baseURL, organizerID string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		organizerID: organizerID,
		http:        hc,
	}
}

// LatestAttendanceReport returns the most recent attendance report of the
// meeting with its records, or nil when the meeting has no report yet.
func (c *Client) LatestAttendanceReport(ctx context.Context, meetingID string) (*AttendanceReport, error) {
	if meetingID == "" {
		return nil, fmt.Errorf("meeting id required")
	}
	base := fmt.Sprintf("%s/users/%s/onlineMeetings/%s/attendanceReports",
		c.baseURL, url.PathEscape(c.organizerID), url.PathEscape(meetingID))

	var list struct {
		Value []AttendanceReport `json:"value"`
	}
	if err := c.get(ctx, base, &list); err != nil {
		return nil, err
	}
	if len(list.Value) == 0 {
		return nil, nil
	}

	sort.SliceStable(list.Value, func(i, j int) bool {
		return reportTime(list.Value[i]).After(reportTime(list.Value[j]))
	})
	latest := list.Value[0]

	var records struct {
		Value []AttendanceRecord `json:"value"`
	}
	if err := c.get(ctx, base+"/"+url.PathEscape(latest.ID)+"/attendanceRecords", &records); err != nil {
		return nil, err
	}
	latest.AttendanceRecords = records.Value
	return &latest, nil
}

func reportTime(r AttendanceReport) time.Time {
	if r.MeetingEndDateTime != nil {
		return *r.MeetingEndDateTime
	}
	if r.MeetingStartDateTime != nil {
		return *r.MeetingStartDateTime
	}
	return time.Time{}
}

func (c *Client) get(ctx context.Context, endpoint string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build graph request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call graph: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read graph response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var payload struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(body, &payload) == nil && payload.Error.Code != "" {
			apiErr.Code = payload.Error.Code
			apiErr.Message = payload.Error.Message
		}
		return apiErr
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode graph response: %w", err)
	}
	return nil
}
