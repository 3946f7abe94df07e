package settings

import (
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/permanent/internal/domain"
	"github.com/aristath/permanent/internal/modules/notifications"
)

// Service validates and applies runtime setting changes.
type Service struct {
	repo    *Repository
	secrets *SecretBox
	log     zerolog.Logger
}

// NewService creates a new settings service. secrets may be nil, in which
// case the SMTP password cannot be stored.
func NewService(repo *Repository, secrets *SecretBox, log zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		secrets: secrets,
		log:     log.With().Str("service", "settings").Logger(),
	}
}

// IsSecret reports whether key holds a value that must never be echoed
func IsSecret(key string) bool {
	return key == KeySMTPPassword
}

// GetAll returns every known setting with stored values overlaid on defaults.
// The SMTP password is masked and reported through KeySMTPPasswordSet.
func (s *Service) GetAll() (map[string]interface{}, error) {
	stored, err := s.repo.GetAll()
	if err != nil {
		return nil, err
	}

	result := make(map[string]interface{}, len(SettingDefaults)+1)
	for key, def := range SettingDefaults {
		raw, ok := stored[key]
		if !ok {
			result[key] = def
			continue
		}
		switch d := def.(type) {
		case bool:
			b, err := strconv.ParseBool(raw)
			if err != nil {
				b = d
			}
			result[key] = b
		case float64:
			f, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				f = d
			}
			result[key] = f
		default:
			result[key] = raw
		}
	}

	passwordSet := stored[KeySMTPPassword] != ""
	result[KeySMTPPasswordSet] = passwordSet
	result[KeySMTPPassword] = ""
	if passwordSet {
		result[KeySMTPPassword] = PasswordMask
	}
	return result, nil
}

// Set validates value against the setting's type and range and stores it.
func (s *Service) Set(key string, value interface{}) error {
	def, ok := SettingDefaults[key]
	if !ok {
		return domain.InvalidInput("unknown setting %q", key)
	}

	var desc *string
	if d, ok := SettingDescriptions[key]; ok {
		desc = &d
	}

	switch def.(type) {
	case bool:
		b, ok := value.(bool)
		if !ok {
			return domain.InvalidInput("setting %q expects a boolean", key)
		}
		return s.repo.Set(key, strconv.FormatBool(b), desc)

	case float64:
		f, ok := value.(float64)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			return domain.InvalidInput("setting %q expects a number", key)
		}
		if err := checkRange(key, f); err != nil {
			return err
		}
		return s.repo.Set(key, strconv.FormatFloat(f, 'g', -1, 64), desc)

	default:
		str, ok := value.(string)
		if !ok {
			return domain.InvalidInput("setting %q expects a string", key)
		}
		if key == KeySMTPPassword {
			return s.setPassword(str, desc)
		}
		return s.repo.Set(key, strings.TrimSpace(str), desc)
	}
}

func (s *Service) setPassword(plain string, desc *string) error {
	plain = strings.TrimSpace(plain)
	switch plain {
	case PasswordMask:
		return nil
	case "":
		return s.repo.Delete(KeySMTPPassword)
	}
	if s.secrets == nil {
		return domain.InvalidInput("setting %q cannot be stored without a secret key", KeySMTPPassword)
	}
	token, err := s.secrets.Seal(plain)
	if err != nil {
		return err
	}
	return s.repo.Set(KeySMTPPassword, token, desc)
}

// SMTPOverride implements notifications.SMTPOverrides. Only fields stored in
// settings are set; the rest stay zero so the environment applies. A
// password that cannot be decrypted is dropped with a warning.
func (s *Service) SMTPOverride() (notifications.SMTPConfig, error) {
	var o notifications.SMTPConfig

	stored, err := s.repo.GetAll()
	if err != nil {
		return o, err
	}

	o.Host = stored[KeySMTPHost]
	o.Username = stored[KeySMTPUsername]
	o.From = stored[KeyMailFrom]
	if port, err := strconv.Atoi(stored[KeySMTPPort]); err == nil && port > 0 {
		o.Port = port
	}
	for _, addr := range strings.Split(stored[KeyMailTo], ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			o.To = append(o.To, addr)
		}
	}

	if token := stored[KeySMTPPassword]; token != "" && s.secrets != nil {
		plain, err := s.secrets.Open(token)
		if err != nil {
			s.log.Warn().Err(err).Msg("Ignoring stored SMTP password")
		} else {
			o.Password = plain
		}
	}
	return o, nil
}

func checkRange(key string, f float64) error {
	switch key {
	case KeyCryptoSlippage:
		if f < 0 || f > 0.2 {
			return domain.InvalidInput("%s must be between 0 and 0.2, got %v", key, f)
		}
	case KeyNotifyCooldownMinutes:
		if f < 1 {
			return domain.InvalidInput("%s must be at least 1, got %v", key, f)
		}
	case KeySMTPPort:
		if f != math.Trunc(f) || (f != 0 && (f < 1 || f > 65535)) {
			return domain.InvalidInput("%s must be 0 or a port between 1 and 65535, got %v", key, f)
		}
	}
	return nil
}
