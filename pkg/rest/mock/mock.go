package mock

import (
	"context"
	"net/http"
	"testing"

	apidatasets "github.com/amrdata/amrportal/pkg/api/types/datasets"
	apimodels "github.com/amrdata/amrportal/pkg/api/types/models"
	apiperm "github.com/amrdata/amrportal/pkg/api/types/permissions"
	apires "github.com/amrdata/amrportal/pkg/api/types/resistance"
	apiusers "github.com/amrdata/amrportal/pkg/api/types/users"
	"github.com/amrdata/amrportal/pkg/rest"
)

type DownloadArgs struct {
	Id        string
	Variables []string
}

type DecisionArgs struct {
	Id       string
	Decision apiperm.Decision
}

type InferArgs struct {
	Id      string
	Request apimodels.InferenceRequest
}

func New(t *testing.T) *MockClient {
	return &MockClient{t: t}
}

// MockClient is rest.AMRClient whose methods are given by Impl.
//
// Calling a method without Impl fails the test.
type MockClient struct {
	t    *testing.T
	Impl struct {
		Login                func(ctx context.Context, cred apiusers.Credentials) (apiusers.Token, error)
		Register             func(ctx context.Context, reg apiusers.Registration) (apiusers.User, error)
		Me                   func(ctx context.Context) (apiusers.User, error)
		Logout               func(ctx context.Context) error
		RequestPasswordReset func(ctx context.Context, email string) error
		FindDataSets         func(ctx context.Context, query apidatasets.Query) (apidatasets.Page, error)
		GetDataSet           func(ctx context.Context, id string) (apidatasets.Detail, error)
		GetFacets            func(ctx context.Context) (apidatasets.Facets, error)
		GetDictionary        func(ctx context.Context, id string) (apidatasets.Dictionary, error)
		RequestPermission    func(ctx context.Context, req apiperm.Request) (apiperm.Permission, error)
		MyPermissions        func(ctx context.Context) ([]apiperm.Permission, error)
		FindPermissions      func(ctx context.Context, status apiperm.Status) ([]apiperm.Permission, error)
		FindUsers            func(ctx context.Context, status apiusers.Status) ([]apiusers.User, error)
		ApproveUser          func(ctx context.Context, id string) (apiusers.User, error)
		DeactivateUser       func(ctx context.Context, id string) (apiusers.User, error)
		ListModels           func(ctx context.Context) ([]apimodels.Model, error)
		GetModel             func(ctx context.Context, id string) (apimodels.Model, error)
		GetTrend             func(ctx context.Context, query apires.TrendQuery) ([]apires.Trend, error)
		GetCountryRates      func(ctx context.Context, query apires.MapQuery) ([]apires.CountryRate, error)
		GetResistanceOptions func(ctx context.Context) (apires.Options, error)
		Ping                 func(ctx context.Context) error
		DownloadDataSet      func(ctx context.Context, id string, variables []string, handler func(*http.Response) error) error
		ApprovePermission    func(ctx context.Context, id string, decision apiperm.Decision) (apiperm.Permission, error)
		DenyPermission       func(ctx context.Context, id string, decision apiperm.Decision) (apiperm.Permission, error)
		RevokePermission     func(ctx context.Context, id string, decision apiperm.Decision) (apiperm.Permission, error)
		Infer                func(ctx context.Context, id string, req apimodels.InferenceRequest) (apimodels.InferenceResult, error)
	}
	Calls struct {
		Login                []apiusers.Credentials
		Register             []apiusers.Registration
		Me                   int
		Logout               int
		RequestPasswordReset []string
		FindDataSets         []apidatasets.Query
		GetDataSet           []string
		GetFacets            int
		GetDictionary        []string
		RequestPermission    []apiperm.Request
		MyPermissions        int
		FindPermissions      []apiperm.Status
		FindUsers            []apiusers.Status
		ApproveUser          []string
		DeactivateUser       []string
		ListModels           int
		GetModel             []string
		GetTrend             []apires.TrendQuery
		GetCountryRates      []apires.MapQuery
		GetResistanceOptions int
		Ping                 int
		DownloadDataSet      []DownloadArgs
		ApprovePermission    []DecisionArgs
		DenyPermission       []DecisionArgs
		RevokePermission     []DecisionArgs
		Infer                []InferArgs
		WithToken            []string
	}
}

var _ rest.AMRClient = &MockClient{}

func (m *MockClient) Login(ctx context.Context, cred apiusers.Credentials) (apiusers.Token, error) {
	m.t.Helper()

	m.Calls.Login = append(m.Calls.Login, cred)
	if m.Impl.Login == nil {
		m.t.Fatal("Login is not ready to be called")
	}
	return m.Impl.Login(ctx, cred)
}

func (m *MockClient) Register(ctx context.Context, reg apiusers.Registration) (apiusers.User, error) {
	m.t.Helper()

	m.Calls.Register = append(m.Calls.Register, reg)
	if m.Impl.Register == nil {
		m.t.Fatal("Register is not ready to be called")
	}
	return m.Impl.Register(ctx, reg)
}

func (m *MockClient) Me(ctx context.Context) (apiusers.User, error) {
	m.t.Helper()

	m.Calls.Me += 1
	if m.Impl.Me == nil {
		m.t.Fatal("Me is not ready to be called")
	}
	return m.Impl.Me(ctx)
}

func (m *MockClient) Logout(ctx context.Context) error {
	m.t.Helper()

	m.Calls.Logout += 1
	if m.Impl.Logout == nil {
		m.t.Fatal("Logout is not ready to be called")
	}
	return m.Impl.Logout(ctx)
}

func (m *MockClient) RequestPasswordReset(ctx context.Context, email string) error {
	m.t.Helper()

	m.Calls.RequestPasswordReset = append(m.Calls.RequestPasswordReset, email)
	if m.Impl.RequestPasswordReset == nil {
		m.t.Fatal("RequestPasswordReset is not ready to be called")
	}
	return m.Impl.RequestPasswordReset(ctx, email)
}

func (m *MockClient) FindDataSets(ctx context.Context, query apidatasets.Query) (apidatasets.Page, error) {
	m.t.Helper()

	m.Calls.FindDataSets = append(m.Calls.FindDataSets, query)
	if m.Impl.FindDataSets == nil {
		m.t.Fatal("FindDataSets is not ready to be called")
	}
	return m.Impl.FindDataSets(ctx, query)
}

func (m *MockClient) GetDataSet(ctx context.Context, id string) (apidatasets.Detail, error) {
	m.t.Helper()

	m.Calls.GetDataSet = append(m.Calls.GetDataSet, id)
	if m.Impl.GetDataSet == nil {
		m.t.Fatal("GetDataSet is not ready to be called")
	}
	return m.Impl.GetDataSet(ctx, id)
}

func (m *MockClient) GetFacets(ctx context.Context) (apidatasets.Facets, error) {
	m.t.Helper()

	m.Calls.GetFacets += 1
	if m.Impl.GetFacets == nil {
		m.t.Fatal("GetFacets is not ready to be called")
	}
	return m.Impl.GetFacets(ctx)
}

func (m *MockClient) GetDictionary(ctx context.Context, id string) (apidatasets.Dictionary, error) {
	m.t.Helper()

	m.Calls.GetDictionary = append(m.Calls.GetDictionary, id)
	if m.Impl.GetDictionary == nil {
		m.t.Fatal("GetDictionary is not ready to be called")
	}
	return m.Impl.GetDictionary(ctx, id)
}

func (m *MockClient) RequestPermission(ctx context.Context, req apiperm.Request) (apiperm.Permission, error) {
	m.t.Helper()

	m.Calls.RequestPermission = append(m.Calls.RequestPermission, req)
	if m.Impl.RequestPermission == nil {
		m.t.Fatal("RequestPermission is not ready to be called")
	}
	return m.Impl.RequestPermission(ctx, req)
}

func (m *MockClient) MyPermissions(ctx context.Context) ([]apiperm.Permission, error) {
	m.t.Helper()

	m.Calls.MyPermissions += 1
	if m.Impl.MyPermissions == nil {
		m.t.Fatal("MyPermissions is not ready to be called")
	}
	return m.Impl.MyPermissions(ctx)
}

func (m *MockClient) FindPermissions(ctx context.Context, status apiperm.Status) ([]apiperm.Permission, error) {
	m.t.Helper()

	m.Calls.FindPermissions = append(m.Calls.FindPermissions, status)
	if m.Impl.FindPermissions == nil {
		m.t.Fatal("FindPermissions is not ready to be called")
	}
	return m.Impl.FindPermissions(ctx, status)
}

func (m *MockClient) FindUsers(ctx context.Context, status apiusers.Status) ([]apiusers.User, error) {
	m.t.Helper()

	m.Calls.FindUsers = append(m.Calls.FindUsers, status)
	if m.Impl.FindUsers == nil {
		m.t.Fatal("FindUsers is not ready to be called")
	}
	return m.Impl.FindUsers(ctx, status)
}

func (m *MockClient) ApproveUser(ctx context.Context, id string) (apiusers.User, error) {
	m.t.Helper()

	m.Calls.ApproveUser = append(m.Calls.ApproveUser, id)
	if m.Impl.ApproveUser == nil {
		m.t.Fatal("ApproveUser is not ready to be called")
	}
	return m.Impl.ApproveUser(ctx, id)
}

func (m *MockClient) DeactivateUser(ctx context.Context, id string) (apiusers.User, error) {
	m.t.Helper()

	m.Calls.DeactivateUser = append(m.Calls.DeactivateUser, id)
	if m.Impl.DeactivateUser == nil {
		m.t.Fatal("DeactivateUser is not ready to be called")
	}
	return m.Impl.DeactivateUser(ctx, id)
}

func (m *MockClient) ListModels(ctx context.Context) ([]apimodels.Model, error) {
	m.t.Helper()

	m.Calls.ListModels += 1
	if m.Impl.ListModels == nil {
		m.t.Fatal("ListModels is not ready to be called")
	}
	return m.Impl.ListModels(ctx)
}

func (m *MockClient) GetModel(ctx context.Context, id string) (apimodels.Model, error) {
	m.t.Helper()

	m.Calls.GetModel = append(m.Calls.GetModel, id)
	if m.Impl.GetModel == nil {
		m.t.Fatal("GetModel is not ready to be called")
	}
	return m.Impl.GetModel(ctx, id)
}

func (m *MockClient) GetTrend(ctx context.Context, query apires.TrendQuery) ([]apires.Trend, error) {
	m.t.Helper()

	m.Calls.GetTrend = append(m.Calls.GetTrend, query)
	if m.Impl.GetTrend == nil {
		m.t.Fatal("GetTrend is not ready to be called")
	}
	return m.Impl.GetTrend(ctx, query)
}

func (m *MockClient) GetCountryRates(ctx context.Context, query apires.MapQuery) ([]apires.CountryRate, error) {
	m.t.Helper()

	m.Calls.GetCountryRates = append(m.Calls.GetCountryRates, query)
	if m.Impl.GetCountryRates == nil {
		m.t.Fatal("GetCountryRates is not ready to be called")
	}
	return m.Impl.GetCountryRates(ctx, query)
}

func (m *MockClient) GetResistanceOptions(ctx context.Context) (apires.Options, error) {
	m.t.Helper()

	m.Calls.GetResistanceOptions += 1
	if m.Impl.GetResistanceOptions == nil {
		m.t.Fatal("GetResistanceOptions is not ready to be called")
	}
	return m.Impl.GetResistanceOptions(ctx)
}

func (m *MockClient) Ping(ctx context.Context) error {
	m.t.Helper()

	m.Calls.Ping += 1
	if m.Impl.Ping == nil {
		m.t.Fatal("Ping is not ready to be called")
	}
	return m.Impl.Ping(ctx)
}

func (m *MockClient) ApprovePermission(ctx context.Context, id string, decision apiperm.Decision) (apiperm.Permission, error) {
	m.t.Helper()

	m.Calls.ApprovePermission = append(m.Calls.ApprovePermission, DecisionArgs{Id: id, Decision: decision})
	if m.Impl.ApprovePermission == nil {
		m.t.Fatal("ApprovePermission is not ready to be called")
	}
	return m.Impl.ApprovePermission(ctx, id, decision)
}

func (m *MockClient) DenyPermission(ctx context.Context, id string, decision apiperm.Decision) (apiperm.Permission, error) {
	m.t.Helper()

	m.Calls.DenyPermission = append(m.Calls.DenyPermission, DecisionArgs{Id: id, Decision: decision})
	if m.Impl.DenyPermission == nil {
		m.t.Fatal("DenyPermission is not ready to be called")
	}
	return m.Impl.DenyPermission(ctx, id, decision)
}

func (m *MockClient) RevokePermission(ctx context.Context, id string, decision apiperm.Decision) (apiperm.Permission, error) {
	m.t.Helper()

	m.Calls.RevokePermission = append(m.Calls.RevokePermission, DecisionArgs{Id: id, Decision: decision})
	if m.Impl.RevokePermission == nil {
		m.t.Fatal("RevokePermission is not ready to be called")
	}
	return m.Impl.RevokePermission(ctx, id, decision)
}

func (m *MockClient) DownloadDataSet(ctx context.Context, id string, variables []string, handler func(*http.Response) error) error {
	m.t.Helper()

	m.Calls.DownloadDataSet = append(m.Calls.DownloadDataSet, DownloadArgs{Id: id, Variables: variables})
	if m.Impl.DownloadDataSet == nil {
		m.t.Fatal("DownloadDataSet is not ready to be called")
	}
	return m.Impl.DownloadDataSet(ctx, id, variables, handler)
}

func (m *MockClient) Infer(ctx context.Context, id string, req apimodels.InferenceRequest) (apimodels.InferenceResult, error) {
	m.t.Helper()

	m.Calls.Infer = append(m.Calls.Infer, InferArgs{Id: id, Request: req})
	if m.Impl.Infer == nil {
		m.t.Fatal("Infer is not ready to be called")
	}
	return m.Impl.Infer(ctx, id, req)
}

// WithToken records token and returns m itself, so calls of the returned client are recorded in m.
func (m *MockClient) WithToken(token string) rest.AMRClient {
	m.t.Helper()

	m.Calls.WithToken = append(m.Calls.WithToken, token)
	return m
}
