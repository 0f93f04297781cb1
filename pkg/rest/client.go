package rest

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apidatasets "github.com/amrdata/amrportal/pkg/api/types/datasets"
	apimodels "github.com/amrdata/amrportal/pkg/api/types/models"
	apiperm "github.com/amrdata/amrportal/pkg/api/types/permissions"
	apires "github.com/amrdata/amrportal/pkg/api/types/resistance"
	apiusers "github.com/amrdata/amrportal/pkg/api/types/users"
	"github.com/amrdata/amrportal/pkg/metrics"
)

// AMRClient talks to the data API.
//
// A client made by NewClient is anonymous. Use WithToken to act as a logged-in user.
type AMRClient interface {
	// Login exchanges credentials for an access token.
	//
	// When credentials are wrong, it returns an error wrapping ErrBadCredentials.
	Login(ctx context.Context, cred apiusers.Credentials) (apiusers.Token, error)

	// Register applies for a new account. The account is pending until an admin approves it.
	Register(ctx context.Context, reg apiusers.Registration) (apiusers.User, error)

	// Me returns the user who owns the token.
	Me(ctx context.Context) (apiusers.User, error)

	// Logout revokes the token and forgets everything cached for it.
	Logout(ctx context.Context) error

	// RequestPasswordReset asks the data API to mail a reset link.
	RequestPasswordReset(ctx context.Context, email string) error

	// FindDataSets searches the dataset catalogue.
	//
	// Args
	//
	// - context.Context
	//
	// - apidatasets.Query: filter and paging. Zero values are not sent.
	//
	// Returns
	//
	// - apidatasets.Page: one page of dataset summaries
	//
	// - error
	FindDataSets(ctx context.Context, query apidatasets.Query) (apidatasets.Page, error)

	// GetDataSet returns metadata of a dataset.
	//
	// If there are no such dataset, the error wraps ErrNotFound.
	GetDataSet(ctx context.Context, id string) (apidatasets.Detail, error)

	// GetFacets returns values which can be used as catalogue filters.
	GetFacets(ctx context.Context) (apidatasets.Facets, error)

	// GetDictionary returns variables of a dataset.
	GetDictionary(ctx context.Context, id string) (apidatasets.Dictionary, error)

	// DownloadDataSet downloads a dataset.
	//
	// Args
	//
	// - context.Context
	//
	// - id: dataset to be downloaded
	//
	// - variables: columns to be included. empty means all permitted variables.
	//
	// - handler: function to be called with the raw response.
	// The response body is closed after handler returns.
	// If handler returns an error, downloading is stopped and the error is returned.
	//
	// Returns
	//
	// - error: error occured when starting downloading, or returned by handler.
	DownloadDataSet(ctx context.Context, id string, variables []string, handler func(*http.Response) error) error

	// RequestPermission applies for access to a restricted dataset.
	RequestPermission(ctx context.Context, req apiperm.Request) (apiperm.Permission, error)

	// MyPermissions lists permission requests of the token owner.
	MyPermissions(ctx context.Context) ([]apiperm.Permission, error)

	// FindPermissions lists permission requests of all users (admin or referee).
	//
	// Empty status means all statuses.
	FindPermissions(ctx context.Context, status apiperm.Status) ([]apiperm.Permission, error)

	ApprovePermission(ctx context.Context, id string, decision apiperm.Decision) (apiperm.Permission, error)
	DenyPermission(ctx context.Context, id string, decision apiperm.Decision) (apiperm.Permission, error)
	RevokePermission(ctx context.Context, id string, decision apiperm.Decision) (apiperm.Permission, error)

	// FindUsers lists users (admin). Empty status means all statuses.
	FindUsers(ctx context.Context, status apiusers.Status) ([]apiusers.User, error)
	ApproveUser(ctx context.Context, id string) (apiusers.User, error)
	DeactivateUser(ctx context.Context, id string) (apiusers.User, error)

	ListModels(ctx context.Context) ([]apimodels.Model, error)
	GetModel(ctx context.Context, id string) (apimodels.Model, error)

	// Infer runs a prediction model. Inputs should be validated against the model's fields beforehand.
	Infer(ctx context.Context, id string, req apimodels.InferenceRequest) (apimodels.InferenceResult, error)

	GetTrend(ctx context.Context, query apires.TrendQuery) ([]apires.Trend, error)
	GetCountryRates(ctx context.Context, query apires.MapQuery) ([]apires.CountryRate, error)
	GetResistanceOptions(ctx context.Context) (apires.Options, error)

	// Ping checks that the API root answers at all.
	Ping(ctx context.Context) error

	// WithToken returns a client acting as the owner of token.
	//
	// The returned client shares connections and the query cache with this client.
	WithToken(token string) AMRClient
}

// Profile tells where the data API is.
type Profile struct {
	// ApiRoot is an absolute URL, like "https://api.example.com/v1".
	ApiRoot string `yaml:"apiRoot"`

	// CA is base64 encoded PEM of a CA certificate to be trusted additionally.
	CA string `yaml:"ca,omitempty"`

	// Timeout of each request. Zero means no timeout.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// Verify checks the profile. Errors wrap ErrProfileInvalid.
func (p *Profile) Verify() error {
	if p == nil {
		return fmt.Errorf("%w: profile is nil", ErrProfileInvalid)
	}
	u, err := url.Parse(p.ApiRoot)
	if err != nil {
		return fmt.Errorf("%w: apiRoot: %s", ErrProfileInvalid, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: apiRoot should be absolute url: %s", ErrProfileInvalid, p.ApiRoot)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: apiRoot should be http or https: %s", ErrProfileInvalid, p.ApiRoot)
	}
	if p.CA != "" {
		bin, err := base64.StdEncoding.DecodeString(p.CA)
		if err != nil {
			return fmt.Errorf("%w: ca is not base64: %s", ErrProfileInvalid, err)
		}
		if !x509.NewCertPool().AppendCertsFromPEM(bin) {
			return fmt.Errorf("%w: ca is not PEM certificate", ErrProfileInvalid)
		}
	}
	if p.Timeout < 0 {
		return fmt.Errorf("%w: timeout should not be negative", ErrProfileInvalid)
	}
	return nil
}

type Option func(*options)

type options struct {
	cache     *Cache
	onExpired func(token string)
	metrics   *metrics.Metrics
	transport http.RoundTripper
}

// WithCache makes GET requests go through the query cache.
func WithCache(c *Cache) Option {
	return func(o *options) { o.cache = c }
}

// WithOnExpired registers a hook called when the data API rejects a token.
func WithOnExpired(hook func(token string)) Option {
	return func(o *options) { o.onExpired = hook }
}

// WithMetrics counts upstream requests.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTransport replaces the base transport under interceptors.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

type client struct {
	httpclient *http.Client
	api        string
	token      string
	cache      *Cache
}

// create new client for Profile
//
// # Args
//
// - *Profile
//
// - ...Option
//
// # Return
//
// - AMRClient: created client
//
// - error: If given profile is invalid, ErrProfileInvalid is returned.
func NewClient(prof *Profile, opts ...Option) (AMRClient, error) {
	if err := prof.Verify(); err != nil {
		return nil, err
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	base := o.transport
	if base == nil {
		base = http.DefaultTransport
	}
	if prof.CA != "" {
		b, err := trustCa(base, []string{prof.CA})
		if err != nil {
			return nil, err
		}
		base = b
	}

	// outermost first: auth headers are set before expiry and metrics see the request.
	var rt http.RoundTripper = &metricsTransport{base: base, metrics: o.metrics}
	rt = &expiryTransport{base: rt, onExpired: o.onExpired}
	rt = &authTransport{base: rt}

	return &client{
		httpclient: &http.Client{Transport: rt, Timeout: prof.Timeout},
		api:        strings.TrimSuffix(prof.ApiRoot, "/"),
		cache:      o.cache,
	}, nil
}

func (c *client) WithToken(token string) AMRClient {
	cp := *c
	cp.token = token
	return &cp
}

// build URL with path
func (c *client) apipath(path ...string) string {
	elems := make([]string, 0, len(path)+1)
	elems = append(elems, c.api)
	for _, p := range path {
		elems = append(elems, url.PathEscape(strings.TrimPrefix(strings.TrimSuffix(p, "/"), "/")))
	}
	return strings.Join(elems, "/")
}

func withQuery(u string, q url.Values) string {
	if len(q) == 0 {
		return u
	}
	return u + "?" + q.Encode()
}

// newRequest builds a request carrying the client's token.
func (c *client) newRequest(ctx context.Context, method string, u string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(withToken(ctx, c.token), method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func trustCa(rt http.RoundTripper, cacerts []string) (http.RoundTripper, error) {
	if len(cacerts) <= 0 {
		return rt, nil
	}

	tran, ok := rt.(*http.Transport)
	if !ok {
		return nil, fmt.Errorf("failed to add ca cert: transport is %T", rt)
	}
	tran = tran.Clone()

	tcc := tran.TLSClientConfig.Clone()
	if tcc == nil {
		tcc = &tls.Config{}
	}

	rootcas := tcc.RootCAs
	if rootcas == nil {
		sys, err := x509.SystemCertPool()
		if err != nil || sys == nil {
			sys = x509.NewCertPool()
		}
		rootcas = sys
		tcc.RootCAs = rootcas
	}
	for _, ca := range cacerts {
		bin, err := base64.StdEncoding.DecodeString(ca)
		if err != nil {
			return nil, err
		}

		if !rootcas.AppendCertsFromPEM(bin) {
			return nil, fmt.Errorf("failed to add cert")
		}
	}

	tran.TLSClientConfig = tcc
	return tran, nil
}
