package evaluate

// ServiceIndex lists, per host, the distinct sensors seen in one cycle's
// results. Hosts and services keep first-seen order.
type ServiceIndex struct {
	hosts    []string
	services map[string][]string
	seen     map[string]map[string]bool
}

// IndexServices builds a ServiceIndex from results.
func IndexServices(results []Result) *ServiceIndex {
	idx := &ServiceIndex{
		services: make(map[string][]string),
		seen:     make(map[string]map[string]bool),
	}
	for _, r := range results {
		idx.add(r.Hostname, r.Sensor)
	}
	return idx
}

func (idx *ServiceIndex) add(host, service string) {
	seen, ok := idx.seen[host]
	if !ok {
		seen = make(map[string]bool)
		idx.seen[host] = seen
		idx.hosts = append(idx.hosts, host)
		idx.services[host] = []string{}
	}
	if seen[service] {
		return
	}
	seen[service] = true
	idx.services[host] = append(idx.services[host], service)
}

// Hosts returns the indexed hostnames.
func (idx *ServiceIndex) Hosts() []string {
	out := make([]string, len(idx.hosts))
	copy(out, idx.hosts)
	return out
}

// Services returns the sensors seen for host, or nil for an unknown host.
func (idx *ServiceIndex) Services(host string) []string {
	svcs, ok := idx.services[host]
	if !ok {
		return nil
	}
	out := make([]string, len(svcs))
	copy(out, svcs)
	return out
}

// Len returns the number of hosts.
func (idx *ServiceIndex) Len() int {
	return len(idx.hosts)
}
