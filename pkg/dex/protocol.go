package dex

import (
	"context"

	"go.uber.org/zap"
)

// Protocol abstracts the two settlement variants of the execution network
// behind a single surface. Same-chain fills have no disclosure step, so their
// DiscloseReady is a no-op.
type Protocol interface {
	Status(ctx context.Context, executionHash string) (Status, error)

	// DiscloseReady submits every secret whose fill is ready to accept it.
	// The same index may be disclosed again on a later call; deduplication is
	// the upstream's responsibility.
	DiscloseReady(ctx context.Context, executionHash string, secrets []string) error
}

// ProtocolFor selects the settlement variant for a chain pair. A settlement
// is same-chain exactly when the source and destination chains are equal.
func ProtocolFor(srcChain, dstChain string, client *Client, logger *zap.Logger) Protocol {
	if srcChain == dstChain {
		return sameChain{client: client, chain: dstChain}
	}
	return crossChain{client: client, logger: logger}
}

// SubmitPath returns the upstream submission endpoint for a variant.
func SubmitPath(crossChain bool) string {
	if crossChain {
		return CrossChainPrefix + "/relayer/v1.0/submit"
	}
	return SameChainPrefix + "/relayer/v1.0/submit"
}

type sameChain struct {
	client *Client
	chain  string
}

func (p sameChain) Status(ctx context.Context, executionHash string) (Status, error) {
	return p.client.SameChainStatus(ctx, p.chain, executionHash)
}

func (p sameChain) DiscloseReady(ctx context.Context, executionHash string, secrets []string) error {
	return nil
}

type crossChain struct {
	client *Client
	logger *zap.Logger
}

func (p crossChain) Status(ctx context.Context, executionHash string) (Status, error) {
	return p.client.CrossChainStatus(ctx, executionHash)
}

func (p crossChain) DiscloseReady(ctx context.Context, executionHash string, secrets []string) error {
	indices, err := p.client.ReadyFills(ctx, executionHash)
	if err != nil {
		return err
	}
	for _, idx := range indices {
		if idx < 0 || idx >= len(secrets) {
			p.logger.Warn("no secret for ready fill",
				zap.String("execution-hash", executionHash),
				zap.Int("idx", idx))
			continue
		}
		if err := p.client.SubmitSecret(ctx, executionHash, secrets[idx]); err != nil {
			return err
		}
		p.logger.Info("disclosed secret",
			zap.String("execution-hash", executionHash),
			zap.Int("idx", idx))
	}
	return nil
}
