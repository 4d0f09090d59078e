package youtrack

import (
	"encoding/json"
	"fmt"
)

// Project is an entry of GET /api/admin/projects.
type Project struct {
	ID        string `json:"id"`
	ShortName string `json:"shortName"`
	Name      string `json:"name"`
}

// User is an entry of GET /api/users.
type User struct {
	Login    string `json:"login"`
	FullName string `json:"fullName"`
}

// Issue is an entry of GET /api/issues.
type Issue struct {
	IDReadable    string        `json:"idReadable"`
	Created       int64         `json:"created"`
	Updated       int64         `json:"updated"`
	Summary       string        `json:"summary"`
	Reporter      *User         `json:"reporter"`
	CommentsCount int           `json:"commentsCount"`
	CustomFields  []CustomField `json:"customFields"`
}

// CustomField is a project custom field attached to an issue. Value is
// null, a single value object or an array of them depending on the field.
type CustomField struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

// Comment is an entry of GET /api/issues/{id}/comments.
type Comment struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Created int64  `json:"created"`
	Updated int64  `json:"updated"`
	Author  *User  `json:"author"`
}

// Activity is an entry of GET /api/issues/{id}/activities. Added and
// Removed are scalars, objects or arrays depending on the field type.
type Activity struct {
	Timestamp int64           `json:"timestamp"`
	Author    *User           `json:"author"`
	Field     *ActivityField  `json:"field"`
	Added     json.RawMessage `json:"added"`
	Removed   json.RawMessage `json:"removed"`
}

// ActivityField names the field an activity changed.
type ActivityField struct {
	Name string `json:"name"`
}

// ErrorResponse is the standard YouTrack error body.
type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// fieldValue is the union of the value shapes YouTrack uses for enum,
// user, state and text fields.
type fieldValue struct {
	Name  string `json:"name"`
	Login string `json:"login"`
	Text  string `json:"text"`
	// Presentation is set for period and date-like fields.
	Presentation string `json:"presentation"`
}

func (v fieldValue) String() string {
	switch {
	case v.Login != "":
		return v.Login
	case v.Name != "":
		return v.Name
	case v.Presentation != "":
		return v.Presentation
	default:
		return v.Text
	}
}

// decodeValues flattens a raw field value into its display strings.
func decodeValues(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var many []json.RawMessage
	if err := json.Unmarshal(raw, &many); err == nil {
		var out []string
		for _, item := range many {
			out = append(out, decodeValues(item)...)
		}
		return out
	}

	var obj fieldValue
	if err := json.Unmarshal(raw, &obj); err == nil {
		if s := obj.String(); s != "" {
			return []string{s}
		}
		return nil
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return []string{str}
	}

	var scalar interface{}
	if err := json.Unmarshal(raw, &scalar); err == nil && scalar != nil {
		return []string{fmt.Sprint(scalar)}
	}
	return nil
}
