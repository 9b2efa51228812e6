package esclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"k8s.io/utils/strings/slices"

	"github.com/snapp-incubator/elasticsearch-user-operator/pkg/consts"
)

var (
	ErrWrongCredentials = fmt.Errorf("the provided credentials have been declined by Elasticsearch")
	ErrNotSuperuser     = fmt.Errorf("the provided login works but the user is missing the superuser role")
)

// Options holds the connection settings of the admin Elasticsearch client.
type Options struct {
	URL                string
	Username           string
	Password           string
	InsecureSkipVerify bool
	Timeout            time.Duration
}

type esClient struct {
	url       string
	es        *elasticsearch.Client
	transport http.RoundTripper
	timeout   time.Duration
}

var _ Client = &esClient{}

// New builds a Client backed by go-elasticsearch, authenticated with the
// operator's admin credentials.
func New(opts Options) (Client, error) {
	url := strings.TrimRight(opts.URL, "/")
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify},
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{url},
		Username:  opts.Username,
		Password:  opts.Password,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	return &esClient{
		url:       url,
		es:        es,
		transport: transport,
		timeout:   timeout,
	}, nil
}

func (c *esClient) URL() string {
	return c.url
}

func (c *esClient) GetRole(ctx context.Context, name string) (*Role, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.es.Security.GetRole(
		c.es.Security.GetRole.WithName(name),
		c.es.Security.GetRole.WithContext(ctx),
	)
	if err != nil {
		return nil, false, err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if res.IsError() {
		return nil, false, apiError("get role", name, res)
	}

	roles := map[string]Role{}
	if err := json.NewDecoder(res.Body).Decode(&roles); err != nil {
		return nil, false, fmt.Errorf("failed to decode role %s: %w", name, err)
	}
	role, ok := roles[name]
	if !ok {
		return nil, false, fmt.Errorf("get role %s succeeded but the response did not contain it", name)
	}
	return &role, true, nil
}

func (c *esClient) PutRole(ctx context.Context, name string, role *Role) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := jsonBody(role)
	if err != nil {
		return err
	}
	res, err := c.es.Security.PutRole(name, body, c.es.Security.PutRole.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return apiError("put role", name, res)
	}
	return nil
}

func (c *esClient) DeleteRole(ctx context.Context, name string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.es.Security.DeleteRole(name, c.es.Security.DeleteRole.WithContext(ctx))
	if err != nil {
		return false, err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if res.IsError() {
		return false, apiError("delete role", name, res)
	}
	return true, nil
}

func (c *esClient) GetUser(ctx context.Context, name string) (*User, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.es.Security.GetUser(
		c.es.Security.GetUser.WithUsername(name),
		c.es.Security.GetUser.WithContext(ctx),
	)
	if err != nil {
		return nil, false, err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if res.IsError() {
		return nil, false, apiError("get user", name, res)
	}

	users := map[string]User{}
	if err := json.NewDecoder(res.Body).Decode(&users); err != nil {
		return nil, false, fmt.Errorf("failed to decode user %s: %w", name, err)
	}
	user, ok := users[name]
	if !ok {
		return nil, false, fmt.Errorf("get user %s succeeded but the response did not contain it", name)
	}
	return &user, true, nil
}

func (c *esClient) PutUser(ctx context.Context, name string, user *User) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := jsonBody(user)
	if err != nil {
		return err
	}
	res, err := c.es.Security.PutUser(name, body, c.es.Security.PutUser.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return apiError("put user", name, res)
	}
	return nil
}

func (c *esClient) DeleteUser(ctx context.Context, name string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.es.Security.DeleteUser(name, c.es.Security.DeleteUser.WithContext(ctx))
	if err != nil {
		return false, err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if res.IsError() {
		return false, apiError("delete user", name, res)
	}
	return true, nil
}

func (c *esClient) ChangePassword(ctx context.Context, name, password string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := jsonBody(map[string]string{"password": password})
	if err != nil {
		return err
	}
	res, err := c.es.Security.ChangePassword(
		body,
		c.es.Security.ChangePassword.WithUsername(name),
		c.es.Security.ChangePassword.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return apiError("change password of user", name, res)
	}
	return nil
}

func (c *esClient) Login(ctx context.Context, username, password string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// A throwaway client over the shared transport, authenticated as the
	// managed user instead of the operator.
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{c.url},
		Username:  username,
		Password:  password,
		Transport: c.transport,
	})
	if err != nil {
		return false, err
	}

	res, err := es.Security.Authenticate(es.Security.Authenticate.WithContext(ctx))
	if err != nil {
		return false, err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusUnauthorized {
		return false, nil
	}
	if res.IsError() {
		return false, apiError("authenticate user", username, res)
	}
	return true, nil
}

func (c *esClient) ConnectionOK(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.es.Security.Authenticate(c.es.Security.Authenticate.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusUnauthorized {
		return ErrWrongCredentials
	}
	if res.IsError() {
		return apiError("authenticate", "operator", res)
	}

	self := struct {
		Username string   `json:"username"`
		Roles    []string `json:"roles"`
	}{}
	if err := json.NewDecoder(res.Body).Decode(&self); err != nil {
		return fmt.Errorf("failed to decode authenticate response: %w", err)
	}
	if !slices.Contains(self.Roles, consts.SuperuserRole) {
		return ErrNotSuperuser
	}
	return nil
}

func jsonBody(v any) (io.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	return bytes.NewReader(data), nil
}

func apiError(op, name string, res *esapi.Response) error {
	body, _ := io.ReadAll(res.Body)
	return fmt.Errorf("failed to %s %s: %s: %s", op, name, res.Status(), string(body))
}
