package constants

// Default retry configuration values
const (
	DefaultMaxRetries       = 3
	DefaultInitialBackoffMs = 100
	DefaultMaxBackoffMs     = 30000
)

// Default timeout values
const (
	DefaultHTTPTimeoutSec        = 30
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 10
	DefaultDatabaseRetryAttempts = 3
)

// Default service configuration values
const (
	DefaultServerPort      = 8084
	DefaultRetentionDays   = 365
	DefaultPollIntervalSec = 60
	DefaultRegion          = "us"
	DefaultLanguageCode    = "en-US"
)

// Key derivation salts for field encryption. The lookup salt keeps
// deterministic ciphertexts in a separate nonce space from random ones.
const (
	EncryptionSalt       = "oce-sinch-db-encryption-v1"
	EncryptionLookupSalt = "oce-sinch-db-lookup-v1"
)

// Input validation bounds
const (
	MinPhoneNumberDigits = 7
	MaxPhoneNumberDigits = 15
	MaxMessageBodyLength = 4096
	MaxTemplateKeyLength = 64
	MaxWebhookBodyBytes  = 1 << 20
	MinRetentionDays     = 1
	MaxRetentionDays     = 3650
)

// Default OAuth token handling
const (
	DefaultTokenTTLSec    = 3600
	TokenExpirySkewSec    = 30
	DefaultConnTestPageSz = 1
)
