package settings

// Setting keys stored in config.db
const (
	KeyCryptoSlippage        = "crypto_slippage"
	KeyNotifyCooldownMinutes = "notify_cooldown_minutes"
	KeyEmailEnabled          = "email_enabled"
	KeyBalanceNeededPrefill  = "balance_needed_include_prefill"

	// SMTP overrides; empty or zero values defer to the environment
	KeySMTPHost     = "smtp_host"
	KeySMTPPort     = "smtp_port"
	KeySMTPUsername = "smtp_username"
	KeySMTPPassword = "smtp_password"
	KeyMailFrom     = "mail_from"
	KeyMailTo       = "mail_to"
)

// KeySMTPPasswordSet is reported by GetAll in place of the password itself.
// It is read-only.
const KeySMTPPasswordSet = "smtp_password_set"

// PasswordMask replaces a stored password in API responses. Writing the mask
// back leaves the stored password unchanged.
const PasswordMask = "***"

// SettingDefaults holds default values for runtime settings. Values are
// float64, bool or string; everything else is rejected by Service.Set.
var SettingDefaults = map[string]interface{}{
	KeyCryptoSlippage:        0.01,  // Fraction of confirmed crypto growth tolerated as slippage (max 0.2)
	KeyNotifyCooldownMinutes: 360.0, // Minimum minutes between repeated threshold emails
	KeyEmailEnabled:          false, // Send monthly and threshold emails
	KeyBalanceNeededPrefill:  false, // Reserved for clients that want prefill in balance-needed
	KeySMTPHost:              "",
	KeySMTPPort:              0.0,
	KeySMTPUsername:          "",
	KeySMTPPassword:          "", // Stored encrypted
	KeyMailFrom:              "",
	KeyMailTo:                "", // Comma separated
}

// SettingDescriptions documents each setting for the settings API
var SettingDescriptions = map[string]string{
	KeyCryptoSlippage:        "Slippage tolerance applied when crediting confirmed crypto purchases (0 to 0.2)",
	KeyNotifyCooldownMinutes: "Minimum minutes between repeated threshold alert emails for the same warnings",
	KeyEmailEnabled:          "Enable monthly reminder and threshold alert emails",
	KeyBalanceNeededPrefill:  "Include prefill amounts when computing the balance-needed figure",
	KeySMTPHost:              "SMTP relay host, overriding SMTP_HOST when set",
	KeySMTPPort:              "SMTP relay port (1 to 65535), 0 uses SMTP_PORT",
	KeySMTPUsername:          "SMTP login, overriding SMTP_USERNAME when set",
	KeySMTPPassword:          "SMTP password, stored encrypted and never returned; empty clears it",
	KeyMailFrom:              "Sender address, overriding MAIL_FROM when set",
	KeyMailTo:                "Comma separated recipients, overriding MAIL_TO when set",
}

// SettingUpdate is the request body for updating one setting
type SettingUpdate struct {
	Value interface{} `json:"value"`
}
