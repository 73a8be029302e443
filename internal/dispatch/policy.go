package dispatch

import (
	"time"

	"github.com/clduab11/pricehawk/internal/domain"
)

// TierPolicy is the immutable config table controlling, per tier, which
// delay a subscriber group waits and which channels it may use. The
// dispatcher asks Allows(tier, channel) — it never enumerates tiers in
// switch/case logic, so a new tier ships as a table row, not a code
// change.
type TierPolicy struct {
	delays  map[domain.SubscriberTier]time.Duration
	allowed map[domain.SubscriberTier]map[domain.Channel]bool
	dailyCap map[domain.Channel]int
}

// DefaultTierPolicy returns the tier table the notification dispatcher
// loads at startup.
func DefaultTierPolicy() *TierPolicy {
	free := channelSet(domain.ChannelEmail)
	starter := channelSet(domain.ChannelEmail, domain.ChannelChat)
	pro := channelSet(domain.ChannelEmail, domain.ChannelChat, domain.ChannelSMS, domain.ChannelIM, domain.ChannelRichMessage)
	elite := channelSet(domain.ChannelEmail, domain.ChannelChat, domain.ChannelSMS, domain.ChannelIM, domain.ChannelRichMessage, domain.ChannelWebhook, domain.ChannelPriority)

	return &TierPolicy{
		delays: map[domain.SubscriberTier]time.Duration{
			domain.SubPro:     0,
			domain.SubElite:   0,
			domain.SubStarter: 24 * time.Hour,
			domain.SubFree:    72 * time.Hour,
		},
		allowed: map[domain.SubscriberTier]map[domain.Channel]bool{
			domain.SubFree:    free,
			domain.SubStarter: starter,
			domain.SubPro:     pro,
			domain.SubElite:   elite,
		},
		dailyCap: map[domain.Channel]int{
			domain.ChannelSMS:      5,
			domain.ChannelIM:       20,
			domain.ChannelPriority: 10,
		},
	}
}

func channelSet(chs ...domain.Channel) map[domain.Channel]bool {
	m := make(map[domain.Channel]bool, len(chs))
	for _, c := range chs {
		m[c] = true
	}
	return m
}

// Allows reports whether tier may use channel.
func (p *TierPolicy) Allows(tier domain.SubscriberTier, ch domain.Channel) bool {
	return p.allowed[tier][ch]
}

// DelayFor returns tier's scheduling delay.
func (p *TierPolicy) DelayFor(tier domain.SubscriberTier) time.Duration {
	return p.delays[tier]
}

// TierGroups partitions every configured tier by its distinct delay, so
// the dispatcher can schedule one job per (delay, tier-set) pair rather
// than hard-coding the {pro,elite}/{starter}/{free} grouping.
func (p *TierPolicy) TierGroups() map[time.Duration][]domain.SubscriberTier {
	groups := make(map[time.Duration][]domain.SubscriberTier)
	for tier, delay := range p.delays {
		groups[delay] = append(groups[delay], tier)
	}
	return groups
}

// DailyCap returns channel's per-user daily send cap, or 0 (no cap) if
// channel has none configured.
func (p *TierPolicy) DailyCap(ch domain.Channel) int {
	return p.dailyCap[ch]
}
