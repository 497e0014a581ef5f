package config

import (
	"fmt"
	"net"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	logx "zbxbridge/pkg/logx"
)

// ErrInvalid marks every validation failure.
var ErrInvalid = errors.New("invalid config")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON names so messages match the file.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks struct constraints and the cross-field rules that tags
// cannot express. It never touches the network.
func Validate(c *Config) error {
	if c == nil {
		return errors.Mark(errors.New("config is nil"), ErrInvalid)
	}
	var problems []string
	if err := validate.Struct(c); err != nil {
		problems = append(problems, formatValidationErrors(err)...)
	}

	if u, err := url.Parse(c.Zabbix.URL); err == nil && c.Zabbix.URL != "" {
		if u.Scheme != "https" && !(c.Zabbix.Insecure && u.Scheme == "http") {
			problems = append(problems, fmt.Sprintf("zabbix.url: scheme %q requires https (set insecure to allow http)", u.Scheme))
		}
	}
	if f := c.Zabbix.OpenURLFormat; f != "" && !strings.Contains(f, "{eventid}") {
		problems = append(problems, "zabbix.open_url_fmt: must contain {eventid}")
	}
	if c.Webhook.Enabled && strings.TrimSpace(c.Webhook.URL) == "" {
		problems = append(problems, "webhook.url: required when webhook is enabled")
	}
	if c.Logging.Level != "" {
		if _, ok := logx.ParseLevel(c.Logging.Level); !ok {
			problems = append(problems, fmt.Sprintf("logging.level: unknown level %q", c.Logging.Level))
		}
	}
	if c.Logging.Telegram.Enabled {
		if c.Logging.Telegram.ChatID == 0 {
			problems = append(problems, "logging.telegram.chat_id: required when telegram logging is enabled")
		}
		if strings.TrimSpace(c.Telegram.Token) == "" {
			problems = append(problems, "logging.telegram: requires telegram.token")
		}
	}
	if s := c.Storage; s != nil && s.Driver != "none" && strings.TrimSpace(s.Path) == "" {
		problems = append(problems, fmt.Sprintf("storage.path: required for driver %q", s.Driver))
	}
	if o := c.Observability; o.Enabled {
		if err := checkListenAddr(o.Addr, o.Token != "", o.AllowInsecure); err != nil {
			problems = append(problems, "observability.addr: "+err.Error())
		}
	}
	if h := c.Heartbeat; h.Cron != "" {
		if _, err := cron.ParseStandard(h.Cron); err != nil {
			problems = append(problems, fmt.Sprintf("heartbeat.cron: %v", err))
		}
		if h.Timezone != "" {
			if _, err := time.LoadLocation(h.Timezone); err != nil {
				problems = append(problems, fmt.Sprintf("heartbeat.timezone: %v", err))
			}
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.Mark(errors.Newf("invalid config: %s", strings.Join(problems, "; ")), ErrInvalid)
}

// checkListenAddr refuses non-loopback binds without a token unless
// explicitly allowed.
func checkListenAddr(addr string, hasToken, allowInsecure bool) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if hasToken || allowInsecure {
		return nil
	}
	if host == "localhost" {
		return nil
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return nil
	}
	return errors.Newf("non-loopback bind %q needs a token or allow_insecure", addr)
}

func formatValidationErrors(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		switch fe.Tag() {
		case "required", "required_if":
			out = append(out, field+": required")
		case "gte", "min":
			out = append(out, fmt.Sprintf("%s: must be >= %s", field, fe.Param()))
		case "lte", "max":
			out = append(out, fmt.Sprintf("%s: must be <= %s", field, fe.Param()))
		case "gt":
			out = append(out, fmt.Sprintf("%s: must be > %s", field, fe.Param()))
		case "oneof":
			out = append(out, fmt.Sprintf("%s: must be one of [%s]", field, fe.Param()))
		case "url":
			out = append(out, field+": must be a valid URL")
		default:
			out = append(out, fmt.Sprintf("%s: failed %q", field, fe.Tag()))
		}
	}
	return out
}
