/*
Package storage is the peer-facing core of a Sispop service node's storage
server.

It covers two concerns:

  - Channel encryption: messages between service nodes are sealed with
    AES-256-CBC under the raw X25519 shared secret of the two nodes. An
    envelope is a 16-byte random IV followed by the PKCS#7 padded
    ciphertext.
  - Reachability testing: peers that stop answering probes are tracked in a
    ledger and reported to the local daemon once they have been failing for
    longer than a grace period (two hours by default).

# Quick Start

Fetch the node keys from the daemon and create a node:

	daemon := sispopd.NewClient("127.0.0.1:30000")
	keys, err := daemon.WaitForPrivateKeys(ctx)
	if err != nil {
		// Handle error
	}

	cfg := storage.NewConfig(keys.X25519, "./addressbook.json",
		storage.WithReporter(daemon),
	)
	node, err := storage.New(cfg)
	if err != nil {
		// Handle error
	}

	node.Start(ctx)
	defer node.Stop()

Encrypt a message for a peer and decrypt its reply:

	envelope, err := node.EncryptHex(payload, peerX25519Hex)
	reply, err := node.DecryptHex(response, peerX25519Hex)

All decryption failures surface as ErrCodeDecryptionFailed or
ErrCodeMalformedEnvelope; the underlying cause is never exposed through
PublicMessage.

Register peers and test them:

	node.AddPeer(&addressbook.PeerEntry{PublicKey: pk, Address: "203.0.113.7:22021"})
	reachable, err := node.TestPeer(ctx, pk)

The node also re-tests the longest-untested failing peer, and one random
known peer, every RetestInterval. Outcomes are published on Events:

	for evt := range node.Events() {
		if evt.Kind == storage.EventReported {
			log.Printf("reported %s after %s", evt.Peer.Short(), evt.Elapsed)
		}
	}

# Thread Safety

All public methods on Node are safe for concurrent use.

# Observability

Logging goes through the Logger interface; NewSlogLogger adapts log/slog.
Metrics go through the Metrics interface; the prometheus subpackage
provides an implementation. Tracing is enabled with WithTracerProvider.
*/
package storage
