// Package ldap implements the create and edit forms for roles of the LDAP
// secrets engine.
package ldap

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"
	"unicode/utf16"

	"github.com/go-ldap/ldif"

	"github.com/dc-tec/openbao-console/internal/validation"
)

// RoleType selects between the two LDAP role flavors.
type RoleType string

const (
	RoleTypeStatic  RoleType = "static"
	RoleTypeDynamic RoleType = "dynamic"
)

// ParseRoleType converts a route segment to a RoleType.
func ParseRoleType(s string) (RoleType, error) {
	switch RoleType(s) {
	case RoleTypeStatic, RoleTypeDynamic:
		return RoleType(s), nil
	default:
		return "", fmt.Errorf("unknown LDAP role type %q", s)
	}
}

// Role is an LDAP secrets engine role as edited in the console.
type Role struct {
	Type RoleType
	Name string

	// Static roles.
	DN             string
	Username       string
	RotationPeriod time.Duration

	// Dynamic roles.
	DefaultTTL       time.Duration
	MaxTTL           time.Duration
	UsernameTemplate string
	CreationLDIF     string
	DeletionLDIF     string
	RollbackLDIF     string
}

// Fields lists the form fields shown for the role's type.
func (r Role) Fields() []string {
	if r.Type == RoleTypeDynamic {
		return []string{"name", "default_ttl", "max_ttl", "username_template", "creation_ldif", "deletion_ldif", "rollback_ldif"}
	}
	return []string{"name", "dn", "username", "rotation_period"}
}

// APIPath is the path the role is read from and written to, relative to /v1/.
func (r Role) APIPath(backend string) string {
	segment := "static-role"
	if r.Type == RoleTypeDynamic {
		segment = "role"
	}
	return fmt.Sprintf("%s/%s/%s", strings.Trim(backend, "/"), segment, r.Name)
}

// Validate marks every missing or malformed field.
func (r Role) Validate() error {
	var v validation.Error
	v.Require("name", r.Name)

	switch r.Type {
	case RoleTypeDynamic:
		checkLDIF(&v, "creation_ldif", "Creation LDIF", r.CreationLDIF, true)
		checkLDIF(&v, "deletion_ldif", "Deletion LDIF", r.DeletionLDIF, true)
		checkLDIF(&v, "rollback_ldif", "Rollback LDIF", r.RollbackLDIF, false)
		if r.MaxTTL > 0 && r.DefaultTTL > r.MaxTTL {
			v.Add("default_ttl", "Default TTL cannot exceed Max TTL.")
		}
	default:
		v.Require("username", r.Username)
		if r.RotationPeriod <= 0 {
			v.Add("rotation_period", "Rotation period is required.")
		}
	}
	return v.Err()
}

// Body is the JSON body sent when saving the role. Name and type are part of the path.
func (r Role) Body() map[string]any {
	body := map[string]any{}
	if r.Type == RoleTypeDynamic {
		body["creation_ldif"] = r.CreationLDIF
		body["deletion_ldif"] = r.DeletionLDIF
		if r.RollbackLDIF != "" {
			body["rollback_ldif"] = r.RollbackLDIF
		}
		if r.UsernameTemplate != "" {
			body["username_template"] = r.UsernameTemplate
		}
		if r.DefaultTTL > 0 {
			body["default_ttl"] = seconds(r.DefaultTTL)
		}
		if r.MaxTTL > 0 {
			body["max_ttl"] = seconds(r.MaxTTL)
		}
		return body
	}

	if r.DN != "" {
		body["dn"] = r.DN
	}
	body["username"] = r.Username
	body["rotation_period"] = seconds(r.RotationPeriod)
	return body
}

// RoleFromData builds a Role from the data block OpenBao returns on read.
func RoleFromData(typ RoleType, name string, data map[string]any) (Role, error) {
	r := Role{Type: typ, Name: name}
	var err error
	str := func(key string) string {
		s, _ := data[key].(string)
		return s
	}
	dur := func(key string) time.Duration {
		if err != nil {
			return 0
		}
		var d time.Duration
		d, err = parseSeconds(data[key])
		if err != nil {
			err = fmt.Errorf("%s: %w", key, err)
		}
		return d
	}

	if typ == RoleTypeDynamic {
		r.UsernameTemplate = str("username_template")
		r.CreationLDIF = str("creation_ldif")
		r.DeletionLDIF = str("deletion_ldif")
		r.RollbackLDIF = str("rollback_ldif")
		r.DefaultTTL = dur("default_ttl")
		r.MaxTTL = dur("max_ttl")
	} else {
		r.DN = str("dn")
		r.Username = str("username")
		r.RotationPeriod = dur("rotation_period")
	}
	return r, err
}

func seconds(d time.Duration) string {
	return strconv.FormatInt(int64(d/time.Second), 10) + "s"
}

// parseSeconds accepts the integer seconds OpenBao returns as well as duration strings.
func parseSeconds(v any) (time.Duration, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return time.Duration(t) * time.Second, nil
	case int:
		return time.Duration(t) * time.Second, nil
	case int64:
		return time.Duration(t) * time.Second, nil
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * time.Second, nil
	case string:
		if t == "" {
			return 0, nil
		}
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return time.Duration(n) * time.Second, nil
		}
		return time.ParseDuration(t)
	default:
		return 0, fmt.Errorf("unexpected duration value %v", v)
	}
}

// templateData stands in for the values OpenBao fills in when it renders the LDIF.
type templateData struct {
	Username    string
	Password    string
	DisplayName string
	RoleName    string
}

var ldifFuncs = template.FuncMap{
	"utf16le": func(s string) string {
		var buf bytes.Buffer
		for _, u := range utf16.Encode([]rune(s)) {
			_ = binary.Write(&buf, binary.LittleEndian, u)
		}
		return buf.String()
	},
	"base64": func(s string) string {
		return base64.StdEncoding.EncodeToString([]byte(s))
	},
}

func checkLDIF(v *validation.Error, field, label, value string, required bool) {
	if strings.TrimSpace(value) == "" {
		if required {
			v.Add(field, label+" is required.")
		}
		return
	}
	if err := ValidateLDIF(value); err != nil {
		v.Add(field, fmt.Sprintf("%s is invalid: %s", label, err))
	}
}

// ValidateLDIF renders an LDIF template with placeholder values and parses the
// result. Base64-encoded templates are accepted.
func ValidateLDIF(tmpl string) error {
	if decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(tmpl)); err == nil && len(decoded) > 0 {
		tmpl = string(decoded)
	}

	t, err := template.New("ldif").Funcs(ldifFuncs).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return fmt.Errorf("template: %w", err)
	}
	var rendered bytes.Buffer
	if err := t.Execute(&rendered, templateData{
		Username:    "v_console_check",
		Password:    "placeholder",
		DisplayName: "console",
		RoleName:    "check",
	}); err != nil {
		return fmt.Errorf("template: %w", err)
	}

	parsed, err := ldif.Parse(rendered.String())
	if err != nil {
		return fmt.Errorf("ldif: %w", err)
	}
	if len(parsed.Entries) == 0 {
		return fmt.Errorf("ldif: no entries")
	}
	return nil
}
