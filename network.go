package rnode

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	NetworkLocalNet Network = "localnet"
	NetworkTestNet  Network = "testnet"
	NetworkMainNet  Network = "mainnet"
)

const (
	DefaultShardId = "root"
	TestNetShardId = "testnet6"
	// Not used until mainnet hard fork 2.
	MainNetShardId = ""

	TokenName    = "REV"
	TokenDecimal = 8

	testNetDomain = "146.235.215.215"
	logsPort      = 8181
)

var (
	defaultLocalPorts     = Host{Grpc: 40401, Http: 40403, HttpAdmin: 40405}
	defaultRemotePortsSSL = Host{Grpc: 30001, Https: 443, HttpAdmin: 30005}
)

type Network string

func (n Network) Valid() bool {
	return n == NetworkLocalNet || n == NetworkTestNet || n == NetworkMainNet
}

func (n Network) Validate() (err error) {
	if !n.Valid() {
		err = errors.Wrapf(ErrNetworkInvalid, "'%s'", n)
	}
	return
}

// Params returns a copy of the network's parameter table. Callers may
// modify the result without affecting other users of the network.
func (n Network) Params() (params *NetworkParams, err error) {
	if err = n.Validate(); err != nil {
		return
	}

	switch n {
	case NetworkLocalNet:
		params = localNetParams()
	case NetworkTestNet:
		params = testNetParams()
	case NetworkMainNet:
		params = mainNetParams()
	}

	return
}

// Host describes the endpoints of a single node. A zero port means the
// service is not exposed.
type Host struct {
	Domain     string `json:"domain"`
	Instance   string `json:"instance,omitempty"`
	ShardId    string `json:"shardId"`
	Grpc       int    `json:"grpc,omitempty"`
	Http       int    `json:"http,omitempty"`
	Https      int    `json:"https,omitempty"`
	HttpAdmin  int    `json:"httpAdmin,omitempty"`
	HttpsAdmin int    `json:"httpsAdmin,omitempty"`
}

func (h Host) withPorts(ports Host) Host {
	h.Grpc = ports.Grpc
	h.Http = ports.Http
	h.Https = ports.Https
	h.HttpAdmin = ports.HttpAdmin
	h.HttpsAdmin = ports.HttpsAdmin
	return h
}

// GrpcUrl is the host:port of the external deploy service.
func (h Host) GrpcUrl() string {
	if h.Grpc == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", h.Domain, h.Grpc)
}

// InternalGrpcUrl is the host:port of the internal propose service, which
// listens one port above the external one.
func (h Host) InternalGrpcUrl() string {
	if h.Grpc == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", h.Domain, h.Grpc+1)
}

func (h Host) HttpUrl() string {
	return httpUrl(h.Domain, h.Https, h.Http)
}

func (h Host) HttpAdminUrl() string {
	return httpUrl(h.Domain, h.HttpsAdmin, h.HttpAdmin)
}

func httpUrl(domain string, https, http int) string {
	switch {
	case https != 0:
		return fmt.Sprintf("https://%s:%d", domain, https)
	case http != 0:
		return fmt.Sprintf("http://%s:%d", domain, http)
	}
	return ""
}

// NodeUrls is the flattened set of urls for one host of a network.
type NodeUrls struct {
	Network      Network `json:"network"`
	TokenName    string  `json:"tokenName"`
	TokenDecimal int     `json:"tokenDecimal"`
	ShardId      string  `json:"shardId"`
	GrpcUrl      string  `json:"grpcUrl,omitempty"`
	InternalUrl  string  `json:"internalUrl,omitempty"`
	HttpUrl      string  `json:"httpUrl,omitempty"`
	HttpAdminUrl string  `json:"httpAdminUrl,omitempty"`
	StatusUrl    string  `json:"statusUrl,omitempty"`
	BlocksUrl    string  `json:"blocksUrl,omitempty"`
	// Testnet only.
	LogsUrl string `json:"logsUrl,omitempty"`
}

func (h Host) Urls(params *NetworkParams) (urls NodeUrls) {
	urls = NodeUrls{
		ShardId:      h.ShardId,
		GrpcUrl:      h.GrpcUrl(),
		InternalUrl:  h.InternalGrpcUrl(),
		HttpUrl:      h.HttpUrl(),
		HttpAdminUrl: h.HttpAdminUrl(),
	}

	if params != nil {
		urls.Network = params.Name
		urls.TokenName = params.TokenName
		urls.TokenDecimal = params.TokenDecimal
	}

	if urls.HttpUrl != "" {
		urls.StatusUrl = urls.HttpUrl + "/api/status"
		urls.BlocksUrl = urls.HttpUrl + "/api/blocks"
	}

	if h.Instance != "" {
		urls.LogsUrl = fmt.Sprintf("http://%s:%d/logs/name:%s", h.Domain, logsPort, h.Instance)
	}

	return
}

type NetworkParams struct {
	Title        string  `json:"title"`
	Name         Network `json:"name"`
	TokenName    string  `json:"tokenName"`
	TokenDecimal int     `json:"tokenDecimal"`
	// Validators accepting deploys and proposals.
	Hosts []Host `json:"hosts"`
	// Observers, read-only queries only.
	ReadOnlys []Host `json:"readOnlys"`
}

func (p *NetworkParams) Validate() (err error) {
	if p.Name == "" {
		return errors.Wrap(ErrNetworkInvalid, "network name is empty")
	}
	if len(p.Hosts) == 0 && len(p.ReadOnlys) == 0 {
		return errors.Wrapf(ErrNetworkInvalid, "network '%s' has no hosts", p.Name)
	}
	for i, h := range append(append([]Host{}, p.Hosts...), p.ReadOnlys...) {
		if h.Domain == "" {
			return errors.Wrapf(ErrNetworkInvalid, "network '%s' host %d has no domain", p.Name, i)
		}
	}
	return
}

// Validator returns the urls of the i'th validator host.
func (p *NetworkParams) Validator(i int) (urls NodeUrls, err error) {
	if i < 0 || i >= len(p.Hosts) {
		err = errors.Errorf("network '%s' has no validator host %d", p.Name, i)
		return
	}
	return p.Hosts[i].Urls(p), nil
}

// ReadOnly returns the urls of the i'th read-only host.
func (p *NetworkParams) ReadOnly(i int) (urls NodeUrls, err error) {
	if i < 0 || i >= len(p.ReadOnlys) {
		err = errors.Errorf("network '%s' has no read-only host %d", p.Name, i)
		return
	}
	return p.ReadOnlys[i].Urls(p), nil
}

func localNetParams() *NetworkParams {
	local := Host{Domain: "localhost", ShardId: DefaultShardId}
	second := local.withPorts(Host{Grpc: 40411, Http: 40413, HttpAdmin: 40415})

	return &NetworkParams{
		Title:        "Local network",
		Name:         NetworkLocalNet,
		TokenName:    TokenName,
		TokenDecimal: TokenDecimal,
		Hosts:        []Host{local.withPorts(defaultLocalPorts), second},
		ReadOnlys:    []Host{local.withPorts(defaultLocalPorts), second},
	}
}

func testNetParams() *NetworkParams {
	node := Host{Domain: testNetDomain, Instance: "node0", ShardId: TestNetShardId}
	observer := Host{Domain: testNetDomain, Instance: "observer", ShardId: TestNetShardId}

	return &NetworkParams{
		Title:        "F1r3fly testing network",
		Name:         NetworkTestNet,
		TokenName:    TokenName,
		TokenDecimal: TokenDecimal,
		Hosts:        []Host{node.withPorts(defaultRemotePortsSSL)},
		ReadOnlys:    []Host{observer.withPorts(defaultRemotePortsSSL)},
	}
}

func mainNetParams() *NetworkParams {
	node := Host{Domain: testNetDomain, ShardId: MainNetShardId}

	return &NetworkParams{
		Title:        "F1r3fly MAIN network",
		Name:         NetworkMainNet,
		TokenName:    TokenName,
		TokenDecimal: TokenDecimal,
		Hosts:        []Host{node.withPorts(defaultRemotePortsSSL)},
		ReadOnlys: []Host{
			// Load balancer for the us, asia and eu servers, http only.
			{Domain: "dev", ShardId: MainNetShardId, Https: 443},
			Host{Domain: "dev", ShardId: MainNetShardId}.withPorts(defaultRemotePortsSSL),
		},
	}
}
