package utils

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// SignupGuard throttles account creation per client IP: a short cooldown
// between attempts and a cap on successful sign-ups per day.
type SignupGuard struct {
	store    *TTLStore
	cooldown time.Duration
	dailyMax int
	now      func() time.Time
}

func NewSignupGuard(rc *redis.Client, cooldownSec, dailyMax int) *SignupGuard {
	return &SignupGuard{
		store:    NewTTLStore(rc, "reg:"),
		cooldown: time.Duration(cooldownSec) * time.Second,
		dailyMax: dailyMax,
		now:      time.Now,
	}
}

func (g *SignupGuard) dayKey(ip string) string {
	return "succday:" + ip + ":" + g.now().Format("20060102")
}

// Allow reports whether ip may attempt a sign-up right now. Store errors fail open.
func (g *SignupGuard) Allow(ctx context.Context, ip string) bool {
	if g == nil {
		return true
	}
	if g.dailyMax > 0 {
		v, ok, err := g.store.Get(ctx, g.dayKey(ip))
		if err == nil && ok {
			if n, _ := strconv.Atoi(v); n >= g.dailyMax {
				return false
			}
		}
	}
	if g.cooldown > 0 {
		ok, err := g.store.SetNX(ctx, "cooldown:"+ip, "1", g.cooldown)
		if err == nil && !ok {
			return false
		}
	}
	return true
}

// Record counts a successful sign-up for today.
func (g *SignupGuard) Record(ctx context.Context, ip string) {
	if g == nil || g.dailyMax <= 0 {
		return
	}
	now := g.now()
	endOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).Add(24 * time.Hour)
	if _, err := g.store.Incr(ctx, g.dayKey(ip), endOfDay.Sub(now)); err != nil {
		Sugar.Warnf("signup counter incr failed ip=%s err=%v", ip, err)
	}
}
