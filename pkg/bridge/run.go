// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"context"
	"time"
)

// Run starts the bridge and polls it every PollInterval until ctx is done.
// Intents are applied between polls; the result is delivered on the
// intent's Reply channel when one is set.
func (b *Bridge) Run(ctx context.Context, intents <-chan Intent) error {
	b.Start(time.Now())

	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case in, ok := <-intents:
			if !ok {
				intents = nil
				continue
			}
			now := time.Now()
			b.Poll(now)
			err := b.Apply(now, in)
			if err != nil {
				b.log.Warn().Err(err).Str("intent", in.Kind.String()).Msg("Intent failed")
			}
			if in.Reply != nil {
				select {
				case in.Reply <- err:
				default:
				}
			}

		case <-ticker.C:
			b.Poll(time.Now())
		}
	}
}
