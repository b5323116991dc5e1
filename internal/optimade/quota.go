package optimade

// URLCount pairs a provider base URL with a number of structures: records
// returned in query stats, the number to save in a plan.
type URLCount struct {
	URL string `json:"url"`
	N   int    `json:"n"`
}

// ProviderCounts holds the per-URL counts for one provider. Providers and
// URLs keep their insertion order.
type ProviderCounts struct {
	Provider string     `json:"provider"`
	URLs     []URLCount `json:"urls"`
}

// Quota looks up the planned count for a provider URL.
func Quota(plan []ProviderCounts, provider, url string) int {
	for _, c := range plan {
		if c.Provider != provider {
			continue
		}
		for _, u := range c.URLs {
			if u.URL == url {
				return u.N
			}
		}
	}
	return 0
}

// Total sums every count.
func Total(plan []ProviderCounts) int {
	n := 0
	for _, c := range plan {
		for _, u := range c.URLs {
			n += u.N
		}
	}
	return n
}

// PerURLPlan lets every URL contribute up to n structures.
func PerURLPlan(stats []ProviderCounts, n int) []ProviderCounts {
	plan := make([]ProviderCounts, len(stats))
	for i, c := range stats {
		plan[i] = ProviderCounts{Provider: c.Provider, URLs: make([]URLCount, len(c.URLs))}
		for j, u := range c.URLs {
			plan[i].URLs[j] = URLCount{URL: u.URL, N: n}
		}
	}
	return plan
}

// DistributeQuotaFair spreads n structures over the providers and URLs in
// stats, where each stats count is the capacity of that URL.
//
// Providers with capacity first get an equal share (the first ones take the
// remainder), capped by capacity. Each provider splits its share equally over
// its URLs and water-fills leftovers round-robin. Whatever is still missing
// goes one unit at a time to the providers with the lowest total, each one
// rotating over its URLs that have capacity left.
func DistributeQuotaFair(stats []ProviderCounts, n int) []ProviderCounts {
	if len(stats) == 0 || n <= 0 {
		return nil
	}

	plan := PerURLPlan(stats, 0)
	caps := make([]int, len(stats))
	var active []int
	for i, c := range stats {
		for _, u := range c.URLs {
			caps[i] += u.N
		}
		if caps[i] > 0 {
			active = append(active, i)
		}
	}
	if len(active) == 0 {
		return plan
	}

	totals := make([]int, len(stats))
	baseShare, extra := n/len(active), n%len(active)
	for k, i := range active {
		want := baseShare
		if k < extra {
			want++
		}
		totals[i] = fillProvider(stats[i].URLs, plan[i].URLs, min(caps[i], want))
	}

	remaining := n
	for _, t := range totals {
		remaining -= t
	}
	if remaining <= 0 {
		return plan
	}

	// Residual capacity per provider, with a round-robin cursor.
	type residual struct {
		urls []int // indexes into the provider URLs
		left []int
		next int
	}
	residuals := make(map[int]*residual)
	for _, i := range active {
		r := &residual{}
		for j, u := range stats[i].URLs {
			if left := u.N - plan[i].URLs[j].N; left > 0 {
				r.urls = append(r.urls, j)
				r.left = append(r.left, left)
			}
		}
		if len(r.urls) > 0 {
			residuals[i] = r
		}
	}

	giveOne := func(i int) {
		r := residuals[i]
		idx := r.next % len(r.urls)
		plan[i].URLs[r.urls[idx]].N++
		totals[i]++
		r.left[idx]--
		if r.left[idx] > 0 {
			r.next = (idx + 1) % len(r.urls)
			return
		}
		r.urls = append(r.urls[:idx], r.urls[idx+1:]...)
		r.left = append(r.left[:idx], r.left[idx+1:]...)
		if len(r.urls) == 0 {
			delete(residuals, i)
			return
		}
		r.next = idx % len(r.urls)
	}

	for remaining > 0 && len(residuals) > 0 {
		lowest := -1
		for _, i := range active {
			if _, ok := residuals[i]; ok && (lowest < 0 || totals[i] < lowest) {
				lowest = totals[i]
			}
		}

		progressed := false
		for _, i := range active {
			if remaining == 0 {
				break
			}
			if _, ok := residuals[i]; !ok || totals[i] != lowest {
				continue
			}
			giveOne(i)
			remaining--
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return plan
}

// fillProvider splits quota over the URLs of one provider: an equal share first
// (the first URLs take the remainder), capped per URL, then leftovers one at a
// time round-robin over URLs with capacity. It returns the amount assigned.
func fillProvider(caps, assigned []URLCount, quota int) int {
	if quota <= 0 || len(caps) == 0 {
		return 0
	}
	share, extra := quota/len(caps), quota%len(caps)
	sum := 0
	for j := range caps {
		want := share
		if j < extra {
			want++
		}
		assigned[j].N = min(want, caps[j].N)
		sum += assigned[j].N
	}

	for sum < quota {
		progressed := false
		for j := range caps {
			if sum == quota {
				break
			}
			if assigned[j].N < caps[j].N {
				assigned[j].N++
				sum++
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	return sum
}
