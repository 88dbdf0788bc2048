package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"movicloud/internal/core"
	"movicloud/internal/httpclient"
	"movicloud/internal/i18n"
)

// Defaults are applied by Seed for keys that are not set yet.
type Defaults struct {
	APIKey       string
	APIBaseURL   string
	ImageBaseURL string
	ProxyEnabled bool
	ProxyURL     string
	Language     string
}

// TMDBUpdate is a partial update of the TMDB settings. Nil fields are left unchanged.
type TMDBUpdate struct {
	APIKey       *string `json:"apiKey"`
	APIBaseURL   *string `json:"apiBaseUrl"`
	ImageBaseURL *string `json:"imageBaseUrl"`
	ProxyEnabled *bool   `json:"proxyEnabled"`
	ProxyURL     *string `json:"proxyUrl"`
}

// Proxy holds the proxy settings.
type Proxy struct {
	ProxyEnabled bool   `json:"proxyEnabled"`
	ProxyURL     string `json:"proxyUrl"`
	HTTPProxy    string `json:"httpProxy"`
	HTTPSProxy   string `json:"httpsProxy"`
	AllProxy     string `json:"allProxy"`
}

// Outbound returns the proxy URL the server-side gateway should dial
// through, or "" when proxying is disabled.
func (p Proxy) Outbound() string {
	if !p.ProxyEnabled {
		return ""
	}
	for _, candidate := range []string{p.ProxyURL, p.HTTPSProxy, p.HTTPProxy, p.AllProxy} {
		if candidate = strings.TrimSpace(candidate); candidate != "" {
			return candidate
		}
	}
	return ""
}

// ProxyUpdate is a partial update of the proxy settings.
type ProxyUpdate struct {
	ProxyEnabled *bool   `json:"proxyEnabled"`
	ProxyURL     *string `json:"proxyUrl"`
	HTTPProxy    *string `json:"httpProxy"`
	HTTPSProxy   *string `json:"httpsProxy"`
	AllProxy     *string `json:"allProxy"`
}

// Service exposes typed access to the settings store.
type Service struct {
	store    Store
	language *i18n.Language
	defaults Defaults
	now      func() time.Time

	mu    sync.Mutex
	hooks []func()
}

// NewService creates a Service. language receives every saved display language.
func NewService(store Store, language *i18n.Language, defaults Defaults) *Service {
	if language == nil {
		language = i18n.NewLanguage(i18n.DefaultLanguage)
	}
	return &Service{store: store, language: language, defaults: defaults, now: time.Now}
}

// OnRoutingChange registers fn to run after TMDB or proxy settings are saved or reset.
func (s *Service) OnRoutingChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

func (s *Service) routingChanged() {
	s.mu.Lock()
	hooks := append([]func(){}, s.hooks...)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// Seed writes the defaults for every key that is not set yet and loads the
// stored display language.
func (s *Service) Seed(ctx context.Context) error {
	current, err := s.store.All(ctx)
	if err != nil {
		return err
	}

	d := s.defaults
	defaults := map[string]string{
		KeyTMDBAPIKey:       d.APIKey,
		KeyTMDBAPIBaseURL:   firstNonEmpty(d.APIBaseURL, core.DefaultAPIBaseURL),
		KeyTMDBImageBaseURL: firstNonEmpty(d.ImageBaseURL, core.DefaultImageBaseURL),
		KeyProxyEnabled:     boolString(d.ProxyEnabled),
		KeyProxyURL:         d.ProxyURL,
		KeyLanguage:         firstNonEmpty(d.Language, i18n.DefaultLanguage),
	}

	missing := make(map[string]string)
	for key, value := range defaults {
		if _, ok := current[key]; !ok {
			missing[key] = value
		}
	}
	if err := s.store.Set(ctx, missing); err != nil {
		return err
	}
	if len(missing) > 0 {
		slog.Info("seeded default settings", "count", len(missing))
	}

	lang, err := s.Language(ctx)
	if err != nil {
		return err
	}
	s.language.Set(lang)
	return nil
}

// TMDB returns the configuration record with defaults for blank base URLs.
func (s *Service) TMDB(ctx context.Context) (core.TMDBConfig, error) {
	all, err := s.store.All(ctx)
	if err != nil {
		return core.TMDBConfig{}, err
	}
	cfg := core.TMDBConfig{
		APIKey:       all[KeyTMDBAPIKey],
		APIBaseURL:   all[KeyTMDBAPIBaseURL],
		ImageBaseURL: all[KeyTMDBImageBaseURL],
		ProxyEnabled: all[KeyProxyEnabled] == "1",
		ProxyURL:     all[KeyProxyURL],
	}
	return cfg.WithDefaults(), nil
}

// SaveTMDB applies a partial update and notifies routing hooks.
func (s *Service) SaveTMDB(ctx context.Context, u TMDBUpdate) error {
	values := map[string]string{}
	setString(values, KeyTMDBAPIKey, u.APIKey)
	if err := setURL(values, KeyTMDBAPIBaseURL, u.APIBaseURL); err != nil {
		return err
	}
	if err := setURL(values, KeyTMDBImageBaseURL, u.ImageBaseURL); err != nil {
		return err
	}
	if u.ProxyEnabled != nil {
		values[KeyProxyEnabled] = boolString(*u.ProxyEnabled)
	}
	if err := setProxyURL(values, KeyProxyURL, u.ProxyURL); err != nil {
		return err
	}

	if err := s.store.Set(ctx, values); err != nil {
		return err
	}
	s.routingChanged()
	return nil
}

// Proxy returns the proxy settings.
func (s *Service) Proxy(ctx context.Context) (Proxy, error) {
	all, err := s.store.All(ctx)
	if err != nil {
		return Proxy{}, err
	}
	return Proxy{
		ProxyEnabled: all[KeyProxyEnabled] == "1",
		ProxyURL:     all[KeyProxyURL],
		HTTPProxy:    all[KeyHTTPProxy],
		HTTPSProxy:   all[KeyHTTPSProxy],
		AllProxy:     all[KeyAllProxy],
	}, nil
}

// SaveProxy applies a partial update and notifies routing hooks. Proxy URLs
// must use http, https or socks5.
func (s *Service) SaveProxy(ctx context.Context, u ProxyUpdate) error {
	values := map[string]string{}
	if u.ProxyEnabled != nil {
		values[KeyProxyEnabled] = boolString(*u.ProxyEnabled)
	}
	for key, v := range map[string]*string{
		KeyProxyURL:   u.ProxyURL,
		KeyHTTPProxy:  u.HTTPProxy,
		KeyHTTPSProxy: u.HTTPSProxy,
		KeyAllProxy:   u.AllProxy,
	} {
		if err := setProxyURL(values, key, v); err != nil {
			return err
		}
	}

	if err := s.store.Set(ctx, values); err != nil {
		return err
	}
	s.routingChanged()
	return nil
}

// Language returns the stored display language, or the default.
func (s *Service) Language(ctx context.Context) (string, error) {
	lang, ok, err := s.store.Get(ctx, KeyLanguage)
	if err != nil {
		return "", err
	}
	if !ok || !i18n.IsSupported(lang) {
		return i18n.DefaultLanguage, nil
	}
	return lang, nil
}

// SaveLanguage persists lang and makes it the active display language.
func (s *Service) SaveLanguage(ctx context.Context, lang string) error {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return core.NewInvalidRequestError("language_param_required", nil)
	}
	if !i18n.IsSupported(lang) {
		return core.NewInvalidRequestError(fmt.Sprintf("unsupported language: %s", lang), nil)
	}
	if err := s.store.Set(ctx, map[string]string{KeyLanguage: lang}); err != nil {
		return err
	}
	s.language.Set(lang)
	return nil
}

// Theme returns the stored theme object, or an empty object.
func (s *Service) Theme(ctx context.Context) (json.RawMessage, error) {
	raw, ok, err := s.store.Get(ctx, KeyTheme)
	if err != nil {
		return nil, err
	}
	if !ok || !gjson.Valid(raw) {
		return json.RawMessage(`{}`), nil
	}
	return json.RawMessage(raw), nil
}

// SaveTheme stores a theme object stamped with updatedAt and returns it.
func (s *Service) SaveTheme(ctx context.Context, theme json.RawMessage) (json.RawMessage, error) {
	if !gjson.ValidBytes(theme) || !gjson.ParseBytes(theme).IsObject() {
		return nil, core.NewInvalidRequestError("theme must be a JSON object", nil)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(theme, &fields); err != nil {
		return nil, core.NewInvalidRequestError("theme must be a JSON object", err)
	}
	stamp, err := json.Marshal(s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	fields["updatedAt"] = stamp

	stored, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	if err := s.store.Set(ctx, map[string]string{KeyTheme: string(stored)}); err != nil {
		return nil, err
	}
	return stored, nil
}

// SystemID returns the installation identifier, generating it on first use.
func (s *Service) SystemID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok, err := s.store.Get(ctx, KeySystemID)
	if err != nil {
		return "", err
	}
	if ok && id != "" {
		return id, nil
	}

	id = uuid.NewString()
	if err := s.store.Set(ctx, map[string]string{KeySystemID: id}); err != nil {
		return "", err
	}
	slog.Info("generated system id", "system_id", id)
	return id, nil
}

// Reset deletes every setting, re-seeds the defaults and notifies routing hooks.
func (s *Service) Reset(ctx context.Context) error {
	all, err := s.store.All(ctx)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(all))
	for key := range all {
		keys = append(keys, key)
	}
	if err := s.store.Delete(ctx, keys...); err != nil {
		return err
	}
	slog.Warn("settings reset to defaults", "deleted", len(keys))

	if err := s.Seed(ctx); err != nil {
		return err
	}
	s.routingChanged()
	return nil
}

// Source adapts a Service to the gateway's settings source.
type Source struct {
	svc *Service
}

// NewSource creates a settings source backed by svc.
func NewSource(svc *Service) *Source {
	return &Source{svc: svc}
}

func (s *Source) TMDBConfig(ctx context.Context) (core.TMDBConfig, error) {
	return s.svc.TMDB(ctx)
}

func setString(values map[string]string, key string, v *string) {
	if v != nil {
		values[key] = strings.TrimSpace(*v)
	}
}

func setURL(values map[string]string, key string, v *string) error {
	if v == nil {
		return nil
	}
	raw := strings.TrimRight(strings.TrimSpace(*v), "/")
	if raw != "" && !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return core.NewInvalidRequestError(fmt.Sprintf("%s must be an http(s) URL", key), nil)
	}
	values[key] = raw
	return nil
}

func setProxyURL(values map[string]string, key string, v *string) error {
	if v == nil {
		return nil
	}
	raw := strings.TrimSpace(*v)
	if raw != "" {
		if _, err := httpclient.ParseProxyURL(raw); err != nil {
			return core.NewInvalidRequestError(fmt.Sprintf("invalid %s", key), err)
		}
	}
	values[key] = raw
	return nil
}

func boolString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
