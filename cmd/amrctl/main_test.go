package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/amrdata/amrportal/cmd/amrctl/subcommands/common"
	"github.com/amrdata/amrportal/cmd/amrctl/subcommands/datasets"
	apidatasets "github.com/amrdata/amrportal/pkg/api/types/datasets"
	apimodels "github.com/amrdata/amrportal/pkg/api/types/models"
	apiperm "github.com/amrdata/amrportal/pkg/api/types/permissions"
	apiusers "github.com/amrdata/amrportal/pkg/api/types/users"
	"github.com/amrdata/amrportal/pkg/access"
	"github.com/amrdata/amrportal/pkg/configs/profiles"
	"github.com/amrdata/amrportal/pkg/rest"
	"github.com/amrdata/amrportal/pkg/rest/mock"
	"github.com/amrdata/amrportal/pkg/utils/try"
	"github.com/google/go-cmp/cmp"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store  string
	client *mock.MockClient
	stdout *bytes.Buffer
	stderr *bytes.Buffer

	// profiles given to NewClient
	connected []profiles.Profile
}

func setup(t *testing.T, store profiles.ProfileStore) *fixture {
	t.Helper()
	f := &fixture{
		store:  filepath.Join(t.TempDir(), "profiles.yaml"),
		client: mock.New(t),
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
	}
	if store != nil {
		if err := store.Save(f.store); err != nil {
			t.Fatal(err)
		}
	}
	return f
}

func loggedIn() profiles.ProfileStore {
	return profiles.ProfileStore{
		"default": &profiles.Profile{ApiRoot: "https://api.example.com/v1", Token: "token-1"},
	}
}

func (f *fixture) run(t *testing.T, stdin string, args ...string) error {
	t.Helper()
	env := &common.Env{
		Stdin:  strings.NewReader(stdin),
		Stdout: f.stdout,
		Stderr: f.stderr,
		NewClient: func(p *profiles.Profile) (rest.AMRClient, error) {
			f.connected = append(f.connected, *p)
			return f.client, nil
		},
		Now: func() time.Time { return epoch },
	}
	root := newRootCommand(env)
	root.SetArgs(append([]string{"--profile-store", f.store, "--loglevel", "off"}, args...))
	return root.ExecuteContext(context.Background())
}

func (f *fixture) saved(t *testing.T) profiles.ProfileStore {
	t.Helper()
	return try.To(profiles.LoadProfileStore(f.store)).OrFatal(t)
}

func TestLogin(t *testing.T) {
	token := apiusers.Token{
		AccessToken: "token-new",
		User:        apiusers.User{ID: "u-1", FirstName: "Ada", LastName: "Lovelace", Role: apiusers.RoleUser},
	}

	t.Run("it creates the profile and stores the token", func(t *testing.T) {
		f := setup(t, nil)
		f.client.Impl.Login = func(context.Context, apiusers.Credentials) (apiusers.Token, error) {
			return token, nil
		}

		if err := f.run(t, "s3cret\n", "login", "--api-root", "https://api.example.com/v1", "--email", "ada@example.com"); err != nil {
			t.Fatal(err)
		}

		if want := []apiusers.Credentials{{Email: "ada@example.com", Password: "s3cret"}}; !cmp.Equal(f.client.Calls.Login, want) {
			t.Errorf("unexpected credentials: %+v", f.client.Calls.Login)
		}
		want := profiles.ProfileStore{
			"default": &profiles.Profile{ApiRoot: "https://api.example.com/v1", Token: "token-new"},
		}
		if got := f.saved(t); !cmp.Equal(got, want) {
			t.Errorf("unexpected store: %s", cmp.Diff(want, got))
		}
		if got := f.stdout.String(); got != "logged in as Ada Lovelace (user)\n" {
			t.Errorf("unexpected output: %q", got)
		}
	})

	t.Run("it reuses the api root of an existing profile", func(t *testing.T) {
		f := setup(t, profiles.ProfileStore{
			"staging": &profiles.Profile{ApiRoot: "https://staging.example.com/v1"},
		})
		f.client.Impl.Login = func(context.Context, apiusers.Credentials) (apiusers.Token, error) {
			return token, nil
		}

		if err := f.run(t, "s3cret", "--profile", "staging", "login", "--email", "ada@example.com"); err != nil {
			t.Fatal(err)
		}
		if len(f.connected) != 1 || f.connected[0].ApiRoot != "https://staging.example.com/v1" {
			t.Errorf("unexpected profile: %+v", f.connected)
		}
		if got := f.saved(t)["staging"].Token; got != "token-new" {
			t.Errorf("token is not stored: %q", got)
		}
	})

	t.Run("unknown profile without api root is usage error", func(t *testing.T) {
		f := setup(t, nil)
		err := f.run(t, "s3cret", "login", "--email", "ada@example.com")
		if !errors.Is(err, common.ErrUsage) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("missing password is usage error", func(t *testing.T) {
		f := setup(t, nil)
		err := f.run(t, "", "login", "--api-root", "https://api.example.com/v1", "--email", "ada@example.com")
		if !errors.Is(err, common.ErrUsage) {
			t.Errorf("unexpected error: %v", err)
		}
		if len(f.client.Calls.Login) != 0 {
			t.Errorf("login is sent")
		}
	})

	t.Run("bad credentials do not save the store", func(t *testing.T) {
		f := setup(t, nil)
		f.client.Impl.Login = func(context.Context, apiusers.Credentials) (apiusers.Token, error) {
			return apiusers.Token{}, rest.ErrBadCredentials
		}
		err := f.run(t, "wrong", "login", "--api-root", "https://api.example.com/v1", "--email", "ada@example.com")
		if !errors.Is(err, rest.ErrBadCredentials) {
			t.Errorf("unexpected error: %v", err)
		}
		if _, err := os.Stat(f.store); !os.IsNotExist(err) {
			t.Errorf("store is written: %v", err)
		}
	})
}

func TestLogout(t *testing.T) {
	t.Run("it revokes and forgets the token", func(t *testing.T) {
		f := setup(t, loggedIn())
		f.client.Impl.Logout = func(context.Context) error { return nil }

		if err := f.run(t, "", "logout"); err != nil {
			t.Fatal(err)
		}
		if !cmp.Equal(f.client.Calls.WithToken, []string{"token-1"}) || f.client.Calls.Logout != 1 {
			t.Errorf("unexpected calls: %+v", f.client.Calls)
		}
		if got := f.saved(t)["default"].Token; got != "" {
			t.Errorf("token is kept: %q", got)
		}
	})

	t.Run("an expired token is forgotten too", func(t *testing.T) {
		f := setup(t, loggedIn())
		f.client.Impl.Logout = func(context.Context) error { return rest.ErrSessionExpired }

		if err := f.run(t, "", "logout"); err != nil {
			t.Fatal(err)
		}
		if got := f.saved(t)["default"].Token; got != "" {
			t.Errorf("token is kept: %q", got)
		}
	})
}

func TestNotLoggedIn(t *testing.T) {
	f := setup(t, profiles.ProfileStore{
		"default": &profiles.Profile{ApiRoot: "https://api.example.com/v1"},
	})
	if err := f.run(t, "", "datasets", "find"); !errors.Is(err, common.ErrNotLoggedIn) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDataSetsFind(t *testing.T) {
	f := setup(t, loggedIn())
	f.client.Impl.FindDataSets = func(context.Context, apidatasets.Query) (apidatasets.Page, error) {
		return apidatasets.Page{
			Count:   45,
			Results: []apidatasets.Summary{{ID: "ds-1", Title: "Blood cultures"}},
		}, nil
	}

	err := f.run(t, "", "datasets", "find", "--search", "blood", "--country", "KE", "--access", "restricted", "--page", "2")
	if err != nil {
		t.Fatal(err)
	}

	want := []apidatasets.Query{{
		Search: "blood", Country: "KE", Access: apidatasets.Restricted,
		Page: 2, PageSize: 20,
	}}
	if !cmp.Equal(f.client.Calls.FindDataSets, want) {
		t.Errorf("unexpected query: %s", cmp.Diff(want, f.client.Calls.FindDataSets))
	}
	if !cmp.Equal(f.client.Calls.WithToken, []string{"token-1"}) {
		t.Errorf("token is not used: %v", f.client.Calls.WithToken)
	}

	var found datasets.Found
	if err := json.Unmarshal(f.stdout.Bytes(), &found); err != nil {
		t.Fatal(err)
	}
	if found.Count != 45 || found.Page != 2 || found.Pages != 3 || len(found.Datasets) != 1 {
		t.Errorf("unexpected output: %+v", found)
	}

	t.Run("wrong access is usage error", func(t *testing.T) {
		f := setup(t, loggedIn())
		if err := f.run(t, "", "datasets", "find", "--access", "secret"); !errors.Is(err, common.ErrUsage) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestDataSetsShow(t *testing.T) {
	decided := epoch.Add(-time.Hour)
	f := setup(t, loggedIn())
	f.client.Impl.GetDataSet = func(_ context.Context, id string) (apidatasets.Detail, error) {
		return apidatasets.Detail{Summary: apidatasets.Summary{ID: id, Access: apidatasets.Restricted}}, nil
	}
	f.client.Impl.GetDictionary = func(context.Context, string) (apidatasets.Dictionary, error) {
		return apidatasets.Dictionary{}, rest.ErrNotFound
	}
	f.client.Impl.MyPermissions = func(context.Context) ([]apiperm.Permission, error) {
		return []apiperm.Permission{
			{ID: "p-1", DataSetID: "ds-1", Status: apiperm.Denied, RequestedAt: epoch.Add(-2 * time.Hour), DecidedAt: &decided, Reason: "too broad"},
		}, nil
	}

	if err := f.run(t, "", "datasets", "show", "ds-1"); err != nil {
		t.Fatal(err)
	}
	var shown datasets.Shown
	if err := json.Unmarshal(f.stdout.Bytes(), &shown); err != nil {
		t.Fatal(err)
	}
	want := datasets.AccessState{State: access.Denied, CanRequest: true, Note: "Reason: too broad"}
	if !cmp.Equal(shown.State, want) {
		t.Errorf("unexpected access: %s", cmp.Diff(want, shown.State))
	}
}

func TestDataSetsRequest(t *testing.T) {
	purpose := "surveillance of carbapenem resistance in county hospitals"
	restricted := func(_ context.Context, id string) (apidatasets.Detail, error) {
		return apidatasets.Detail{Summary: apidatasets.Summary{ID: id, Access: apidatasets.Restricted}}, nil
	}
	dict := func(context.Context, string) (apidatasets.Dictionary, error) {
		return apidatasets.Dictionary{Variables: []apidatasets.Variable{{Name: "age"}, {Name: "organism"}}}, nil
	}

	t.Run("it requests selected variables", func(t *testing.T) {
		f := setup(t, loggedIn())
		f.client.Impl.GetDataSet = restricted
		f.client.Impl.GetDictionary = dict
		f.client.Impl.MyPermissions = func(context.Context) ([]apiperm.Permission, error) { return nil, nil }
		f.client.Impl.RequestPermission = func(_ context.Context, req apiperm.Request) (apiperm.Permission, error) {
			return apiperm.Permission{ID: "p-1", DataSetID: req.DataSetID, Status: apiperm.Requested}, nil
		}

		err := f.run(t, "", "datasets", "request", "ds-1", "--purpose", purpose, "--variable", "organism", "--variable", "age")
		if err != nil {
			t.Fatal(err)
		}
		want := []apiperm.Request{{DataSetID: "ds-1", Purpose: purpose, Variables: []string{"age", "organism"}}}
		if !cmp.Equal(f.client.Calls.RequestPermission, want) {
			t.Errorf("unexpected request: %s", cmp.Diff(want, f.client.Calls.RequestPermission))
		}
	})

	t.Run("a recent denial blocks a request within the cooldown", func(t *testing.T) {
		decided := epoch.Add(-time.Hour)
		f := setup(t, loggedIn())
		f.client.Impl.GetDataSet = restricted
		f.client.Impl.MyPermissions = func(context.Context) ([]apiperm.Permission, error) {
			return []apiperm.Permission{{DataSetID: "ds-1", Status: apiperm.Denied, DecidedAt: &decided}}, nil
		}

		err := f.run(t, "", "datasets", "request", "ds-1", "--purpose", purpose, "--variable", "age", "--cooldown", "24h")
		var ne *access.NotEligibleError
		if !errors.As(err, &ne) || ne.Wait != 23*time.Hour {
			t.Errorf("unexpected error: %v", err)
		}
		if len(f.client.Calls.RequestPermission) != 0 {
			t.Errorf("request is sent")
		}
	})

	t.Run("short purpose is usage error", func(t *testing.T) {
		f := setup(t, loggedIn())
		f.client.Impl.GetDataSet = restricted
		f.client.Impl.GetDictionary = dict
		f.client.Impl.MyPermissions = func(context.Context) ([]apiperm.Permission, error) { return nil, nil }

		err := f.run(t, "", "datasets", "request", "ds-1", "--purpose", "research", "--variable", "age")
		if !errors.Is(err, common.ErrUsage) || !strings.Contains(err.Error(), "purpose") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("open dataset needs no request", func(t *testing.T) {
		f := setup(t, loggedIn())
		f.client.Impl.GetDataSet = func(_ context.Context, id string) (apidatasets.Detail, error) {
			return apidatasets.Detail{Summary: apidatasets.Summary{ID: id, Access: apidatasets.Open}}, nil
		}
		err := f.run(t, "", "datasets", "request", "ds-1", "--purpose", purpose)
		if !errors.Is(err, datasets.ErrOpenDataSet) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestDataSetsDownload(t *testing.T) {
	f := setup(t, loggedIn())
	f.client.Impl.DownloadDataSet = func(_ context.Context, _ string, _ []string, handler func(*http.Response) error) error {
		return handler(&http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": {"text/csv"}},
			Body:       io.NopCloser(strings.NewReader("age,organism\n42,E. coli\n")),
		})
	}

	out := filepath.Join(t.TempDir(), "ds-1.csv")
	if err := f.run(t, "", "datasets", "download", "ds-1", "--variable", "age,organism", "--output", out); err != nil {
		t.Fatal(err)
	}

	want := []mock.DownloadArgs{{Id: "ds-1", Variables: []string{"age", "organism"}}}
	if !cmp.Equal(f.client.Calls.DownloadDataSet, want) {
		t.Errorf("unexpected download: %+v", f.client.Calls.DownloadDataSet)
	}
	if got := string(try.To(os.ReadFile(out)).OrFatal(t)); got != "age,organism\n42,E. coli\n" {
		t.Errorf("unexpected content: %q", got)
	}
	if got := f.stderr.String(); !strings.Contains(got, "saved 24 B to "+out) {
		t.Errorf("unexpected message: %q", got)
	}
}

func TestDictionary(t *testing.T) {
	f := setup(t, loggedIn())
	f.client.Impl.GetDictionary = func(context.Context, string) (apidatasets.Dictionary, error) {
		return apidatasets.Dictionary{Variables: []apidatasets.Variable{
			{Name: "age", Type: "integer"},
			{Name: "organism", Type: "string", Label: "Organism isolated"},
			{Name: "site", Type: "string"},
		}}, nil
	}

	if err := f.run(t, "", "dictionary", "ds-1", "--type", "string", "--search", "isolated"); err != nil {
		t.Fatal(err)
	}
	var got []apidatasets.Variable
	if err := json.Unmarshal(f.stdout.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != "organism" {
		t.Errorf("unexpected variables: %+v", got)
	}
}

func TestPermissionsList(t *testing.T) {
	t.Run("mine", func(t *testing.T) {
		f := setup(t, loggedIn())
		f.client.Impl.MyPermissions = func(context.Context) ([]apiperm.Permission, error) { return nil, nil }
		if err := f.run(t, "", "permissions", "list"); err != nil {
			t.Fatal(err)
		}
		if got := strings.TrimSpace(f.stdout.String()); got != "[]" {
			t.Errorf("unexpected output: %q", got)
		}
	})

	t.Run("all", func(t *testing.T) {
		f := setup(t, loggedIn())
		f.client.Impl.FindPermissions = func(context.Context, apiperm.Status) ([]apiperm.Permission, error) { return nil, nil }
		if err := f.run(t, "", "permissions", "list", "--all"); err != nil {
			t.Fatal(err)
		}
		if !cmp.Equal(f.client.Calls.FindPermissions, []apiperm.Status{""}) {
			t.Errorf("unexpected status: %v", f.client.Calls.FindPermissions)
		}
	})

	t.Run("status implies all", func(t *testing.T) {
		f := setup(t, loggedIn())
		f.client.Impl.FindPermissions = func(context.Context, apiperm.Status) ([]apiperm.Permission, error) { return nil, nil }
		if err := f.run(t, "", "permissions", "list", "--status", "requested"); err != nil {
			t.Fatal(err)
		}
		if !cmp.Equal(f.client.Calls.FindPermissions, []apiperm.Status{apiperm.Requested}) {
			t.Errorf("unexpected status: %v", f.client.Calls.FindPermissions)
		}
	})

	t.Run("unknown status", func(t *testing.T) {
		f := setup(t, loggedIn())
		if err := f.run(t, "", "permissions", "list", "--status", "pending"); !errors.Is(err, common.ErrUsage) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestPermissionsDecide(t *testing.T) {
	type when struct {
		role   apiusers.Role
		status apiperm.Status
		args   []string
	}
	type then struct {
		err      error
		approved []mock.DecisionArgs
		denied   []mock.DecisionArgs
		revoked  []mock.DecisionArgs
	}

	theory := func(when when, then then) func(*testing.T) {
		return func(t *testing.T) {
			f := setup(t, loggedIn())
			f.client.Impl.Me = func(context.Context) (apiusers.User, error) {
				return apiusers.User{ID: "u-9", Role: when.role}, nil
			}
			f.client.Impl.FindPermissions = func(context.Context, apiperm.Status) ([]apiperm.Permission, error) {
				return []apiperm.Permission{{ID: "p-1", DataSetID: "ds-1", Status: when.status}}, nil
			}
			decided := func(_ context.Context, id string, _ apiperm.Decision) (apiperm.Permission, error) {
				return apiperm.Permission{ID: id}, nil
			}
			f.client.Impl.ApprovePermission = decided
			f.client.Impl.DenyPermission = decided
			f.client.Impl.RevokePermission = decided

			err := f.run(t, "", append([]string{"permissions"}, when.args...)...)
			if then.err == nil {
				if err != nil {
					t.Fatal(err)
				}
			} else if !errors.Is(err, then.err) {
				t.Errorf("unexpected error: %v", err)
			}

			if !cmp.Equal(f.client.Calls.ApprovePermission, then.approved) {
				t.Errorf("approved: %+v", f.client.Calls.ApprovePermission)
			}
			if !cmp.Equal(f.client.Calls.DenyPermission, then.denied) {
				t.Errorf("denied: %+v", f.client.Calls.DenyPermission)
			}
			if !cmp.Equal(f.client.Calls.RevokePermission, then.revoked) {
				t.Errorf("revoked: %+v", f.client.Calls.RevokePermission)
			}
		}
	}

	t.Run("referee approves a request", theory(
		when{role: apiusers.RoleReferee, status: apiperm.Requested, args: []string{"approve", "p-1"}},
		then{approved: []mock.DecisionArgs{{Id: "p-1"}}},
	))
	t.Run("admin denies a request with reason", theory(
		when{role: apiusers.RoleAdmin, status: apiperm.Requested, args: []string{"deny", "p-1", "--reason", "too broad"}},
		then{denied: []mock.DecisionArgs{{Id: "p-1", Decision: apiperm.Decision{Reason: "too broad"}}}},
	))
	t.Run("deny needs a reason", theory(
		when{role: apiusers.RoleAdmin, status: apiperm.Requested, args: []string{"deny", "p-1"}},
		then{err: common.ErrUsage},
	))
	t.Run("referee cannot revoke", theory(
		when{role: apiusers.RoleReferee, status: apiperm.Approved, args: []string{"revoke", "p-1", "--reason", "misuse"}},
		then{err: access.ErrForbidden},
	))
	t.Run("user cannot approve", theory(
		when{role: apiusers.RoleUser, status: apiperm.Requested, args: []string{"approve", "p-1"}},
		then{err: access.ErrForbidden},
	))
	t.Run("approved request cannot be approved again", theory(
		when{role: apiusers.RoleAdmin, status: apiperm.Approved, args: []string{"approve", "p-1"}},
		then{err: access.ErrInvalidTransition},
	))
	t.Run("unknown permission", theory(
		when{role: apiusers.RoleAdmin, status: apiperm.Requested, args: []string{"approve", "p-2"}},
		then{err: rest.ErrNotFound},
	))
}

func TestModelsInfer(t *testing.T) {
	model := apimodels.Model{
		ID: "m-1",
		Inputs: []apimodels.Field{
			{Name: "age", Type: apimodels.Integer, Required: true},
			{Name: "sex", Type: apimodels.String, Options: []string{"F", "M"}},
		},
	}
	prepare := func(t *testing.T) *fixture {
		f := setup(t, loggedIn())
		f.client.Impl.GetModel = func(context.Context, string) (apimodels.Model, error) { return model, nil }
		f.client.Impl.Infer = func(context.Context, string, apimodels.InferenceRequest) (apimodels.InferenceResult, error) {
			return apimodels.InferenceResult{Prediction: "resistant", Probability: 0.8}, nil
		}
		return f
	}

	t.Run("inputs are converted to field types", func(t *testing.T) {
		f := prepare(t)
		if err := f.run(t, "", "models", "infer", "m-1", "age=42", "sex=F"); err != nil {
			t.Fatal(err)
		}
		want := []mock.InferArgs{{
			Id:      "m-1",
			Request: apimodels.InferenceRequest{Inputs: map[string]any{"age": int64(42), "sex": "F"}},
		}}
		if !cmp.Equal(f.client.Calls.Infer, want) {
			t.Errorf("unexpected inference: %s", cmp.Diff(want, f.client.Calls.Infer))
		}
	})

	t.Run("invalid input is not sent", func(t *testing.T) {
		f := prepare(t)
		err := f.run(t, "", "models", "infer", "m-1", "age=old")
		if !errors.Is(err, common.ErrUsage) || !strings.Contains(err.Error(), "age") {
			t.Errorf("unexpected error: %v", err)
		}
		if len(f.client.Calls.Infer) != 0 {
			t.Errorf("inference is sent")
		}
	})

	t.Run("unknown input is usage error", func(t *testing.T) {
		f := prepare(t)
		if err := f.run(t, "", "models", "infer", "m-1", "age=42", "weight=70"); !errors.Is(err, common.ErrUsage) {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("argument without = is usage error", func(t *testing.T) {
		f := prepare(t)
		if err := f.run(t, "", "models", "infer", "m-1", "age"); !errors.Is(err, common.ErrUsage) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestVersion(t *testing.T) {
	f := setup(t, nil)
	if err := f.run(t, "", "version"); err != nil {
		t.Fatal(err)
	}
	if got := f.stdout.String(); !strings.HasPrefix(got, "amrctl ") {
		t.Errorf("unexpected output: %q", got)
	}
}
