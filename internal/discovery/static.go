package discovery

import "context"

// StaticProducer replays a fixed list of ServiceInfo once, for manual
// testing and development without a live MQTT broker or cluster
// (supplements the original, which has no direct analog — DESIGN.md).
type StaticProducer struct {
	Services []ServiceInfo
}

func (p *StaticProducer) Run(ctx context.Context, onDiscover func(ServiceInfo)) error {
	for _, s := range p.Services {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		onDiscover(s)
	}
	<-ctx.Done()
	return ctx.Err()
}
