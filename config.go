package rnode

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// LoadNetworkParams reads a NetworkParams table from a json file. This is
// how custom or private networks are configured.
func LoadNetworkParams(path string) (params *NetworkParams, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		err = errors.Wrapf(err, "failed to read network config file: %s", path)
		return
	}

	params = &NetworkParams{}
	if err = json.Unmarshal(data, params); err != nil {
		err = errors.Wrapf(err, "failed to unmarshal json from network config file: %s", path)
		return
	}

	if params.TokenName == "" {
		params.TokenName = TokenName
	}

	if params.TokenDecimal == 0 {
		params.TokenDecimal = TokenDecimal
	}

	if err = params.Validate(); err != nil {
		return
	}

	log.Info().Msgf("loaded network '%s' from config file: %s", params.Name, path)

	return
}

// ResolveNetwork returns the parameters from the config file at path when
// one is given, otherwise the built in table for network.
func ResolveNetwork(network Network, path string) (params *NetworkParams, err error) {
	if path != "" {
		return LoadNetworkParams(path)
	}
	return network.Params()
}
