/*
Package rnode facilitates interaction with an RNode (RChain / F1r3fly) node,
with the intention of allowing deploys to be signed, verified and submitted.

The heart of the package is the deploy signing protocol. A deploy's unsigned
fields are written out using the node's DeployDataProto wire encoding,
skipping every field that holds its default value, the bytes are hashed
with BLAKE2b-256 and the digest is signed with ECDSA over secp256k1. Any
implementation that gets a single byte of the encoding wrong produces
signatures the node will reject, so the encoding is kept a pure function of
the six unsigned fields.

Remote calls against the node's gRPC and HTTP services live in the
rpcclient package.
*/

package rnode
