// Package telegram validates Mini App launch data and runs the companion bot.
package telegram

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingHash      = errors.New("telegram: init data is not signed")
	ErrSignatureInvalid = errors.New("telegram: init data signature invalid")
	ErrExpired          = errors.New("telegram: init data expired")
	ErrMalformed        = errors.New("telegram: init data malformed")
)

// Telegram's Ed25519 keys for third-party validation of init data.
const (
	productionPublicKey = "e7bf03a2fa4602af4580703d88dda5bb59f32ed8b02a56c187fe7d34caed242d"
	testPublicKey       = "40055058a4ee38156a06562e52eece92a771bcd8346a8c4615cb7376eddf72ec"
)

const (
	defaultMaxAge = 24 * time.Hour
	defaultSkew   = 30 * time.Second
)

// User is the Telegram account that opened the Mini App.
type User struct {
	ID              int64  `json:"id"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name,omitempty"`
	Username        string `json:"username,omitempty"`
	LanguageCode    string `json:"language_code,omitempty"`
	IsPremium       bool   `json:"is_premium,omitempty"`
	PhotoURL        string `json:"photo_url,omitempty"`
	AllowsWriteToPM bool   `json:"allows_write_to_pm,omitempty"`
}

// InitData is the verified content of the launch payload.
type InitData struct {
	User       *User     `json:"user,omitempty"`
	AuthDate   time.Time `json:"auth_date"`
	QueryID    string    `json:"query_id,omitempty"`
	StartParam string    `json:"start_param,omitempty"`
	ChatType   string    `json:"chat_type,omitempty"`
	// Mode is "hmac" or "ed25519" depending on which proof was accepted.
	Mode string `json:"mode"`
}

// Validator checks init data for one bot. With a bot token it verifies the
// HMAC hash; with only the bot id it verifies Telegram's Ed25519 signature.
type Validator struct {
	BotToken string
	BotID    int64
	TestEnv  bool
	MaxAge   time.Duration
	Skew     time.Duration
	Now      func() time.Time

	// PublicKey overrides Telegram's published key.
	PublicKey ed25519.PublicKey
}

func (v *Validator) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

func (v *Validator) botID() int64 {
	if v.BotID != 0 {
		return v.BotID
	}
	prefix, _, ok := strings.Cut(v.BotToken, ":")
	if !ok {
		return 0
	}
	id, _ := strconv.ParseInt(prefix, 10, 64)
	return id
}

func (v *Validator) publicKey() ed25519.PublicKey {
	if len(v.PublicKey) == ed25519.PublicKeySize {
		return v.PublicKey
	}
	raw := productionPublicKey
	if v.TestEnv {
		raw = testPublicKey
	}
	key, _ := hex.DecodeString(raw)
	return ed25519.PublicKey(key)
}

// Validate verifies raw (the Mini App initData query string) and returns its
// parsed content. Only a payload whose proof, bot binding and age all check
// out is returned.
func (v *Validator) Validate(raw string) (*InitData, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrMalformed)
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	hash := values.Get("hash")
	signature := values.Get("signature")

	var mode string
	switch {
	case v.BotToken != "" && hash != "":
		expected := SignHMAC(values, v.BotToken)
		if !hmac.Equal([]byte(expected), []byte(strings.ToLower(hash))) {
			return nil, ErrSignatureInvalid
		}
		mode = "hmac"
	case signature != "":
		botID := v.botID()
		if botID == 0 {
			return nil, fmt.Errorf("%w: bot id unknown", ErrSignatureInvalid)
		}
		sig, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(signature, "="))
		if err != nil || len(sig) != ed25519.SignatureSize {
			return nil, fmt.Errorf("%w: signature encoding", ErrSignatureInvalid)
		}
		msg := ThirdPartyMessage(values, botID)
		if !ed25519.Verify(v.publicKey(), []byte(msg), sig) {
			return nil, ErrSignatureInvalid
		}
		mode = "ed25519"
	default:
		return nil, ErrMissingHash
	}

	data, err := parse(values)
	if err != nil {
		return nil, err
	}
	data.Mode = mode

	maxAge := v.MaxAge
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	skew := v.Skew
	if skew <= 0 {
		skew = defaultSkew
	}
	now := v.now()
	if data.AuthDate.After(now.Add(skew)) {
		return nil, fmt.Errorf("%w: auth_date in the future", ErrExpired)
	}
	if now.Sub(data.AuthDate) > maxAge {
		return nil, ErrExpired
	}
	return data, nil
}

func parse(values url.Values) (*InitData, error) {
	authRaw := values.Get("auth_date")
	if authRaw == "" {
		return nil, fmt.Errorf("%w: auth_date missing", ErrMalformed)
	}
	authUnix, err := strconv.ParseInt(authRaw, 10, 64)
	if err != nil || authUnix <= 0 {
		return nil, fmt.Errorf("%w: auth_date %q", ErrMalformed, authRaw)
	}
	data := &InitData{
		AuthDate:   time.Unix(authUnix, 0).UTC(),
		QueryID:    values.Get("query_id"),
		StartParam: values.Get("start_param"),
		ChatType:   values.Get("chat_type"),
	}
	if rawUser := values.Get("user"); rawUser != "" {
		var u User
		if err := json.Unmarshal([]byte(rawUser), &u); err != nil {
			return nil, fmt.Errorf("%w: user: %v", ErrMalformed, err)
		}
		if u.ID == 0 {
			return nil, fmt.Errorf("%w: user id missing", ErrMalformed)
		}
		data.User = &u
	}
	return data, nil
}

// DataCheckString joins every field except the excluded keys as sorted
// key=value lines.
func DataCheckString(values url.Values, exclude ...string) string {
	skip := map[string]bool{}
	for _, k := range exclude {
		skip[k] = true
	}
	pairs := make([]string, 0, len(values))
	for key, vals := range values {
		if skip[key] || len(vals) == 0 {
			continue
		}
		pairs = append(pairs, key+"="+vals[0])
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "\n")
}

// SignHMAC computes the hex hash Telegram attaches for botToken.
func SignHMAC(values url.Values, botToken string) string {
	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))
	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(DataCheckString(values, "hash")))
	return hex.EncodeToString(mac.Sum(nil))
}

// ThirdPartyMessage is the byte string Telegram signs with Ed25519.
func ThirdPartyMessage(values url.Values, botID int64) string {
	return strconv.FormatInt(botID, 10) + ":WebAppData\n" + DataCheckString(values, "hash", "signature")
}
