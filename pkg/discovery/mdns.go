package discovery

import (
	"context"
	"fmt"
	"os"
	"strings"

	"trackmesh/pkg/logger"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceType defines the mDNS service type for trackmesh nodes
	ServiceType = "_trackmesh._tcp"
	// Domain is the local domain for mDNS
	Domain = "local."
)

// ServiceInfo contains information about a discovered node
type ServiceInfo struct {
	InstanceName string
	HostName     string
	Port         int
	IPs          []string
	Meta         map[string]string
}

// PeerID returns the peer identity announced in the TXT records, if any.
func (s *ServiceInfo) PeerID() string {
	return s.Meta["peer_id"]
}

// Advertiser broadcasts this node's presence on the local network
type Advertiser struct {
	server *zeroconf.Server
}

func NewAdvertiser() *Advertiser {
	return &Advertiser{}
}

// Start begins broadcasting the service
func (a *Advertiser) Start(instanceName string, port int, meta map[string]string) error {
	if instanceName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			instanceName = "trackmesh-node"
		} else {
			instanceName = fmt.Sprintf("trackmesh-%s", hostname)
		}
	}

	var txtRecords []string
	for k, v := range meta {
		txtRecords = append(txtRecords, fmt.Sprintf("%s=%s", k, v))
	}

	server, err := zeroconf.Register(
		instanceName,
		ServiceType,
		Domain,
		port,
		txtRecords,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}

	a.server = server
	return nil
}

// Stop stops broadcasting the service
func (a *Advertiser) Stop() {
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// Resolver browses the local network for other nodes
type Resolver struct {
	resolver *zeroconf.Resolver
}

func NewResolver() (*Resolver, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}
	return &Resolver{resolver: resolver}, nil
}

// Browse scans for nodes until the context is canceled. It returns a
// channel that receives every discovered service with at least one
// usable IPv4 address.
func (r *Resolver) Browse(ctx context.Context) (<-chan *ServiceInfo, error) {
	entries := make(chan *zeroconf.ServiceEntry)
	results := make(chan *ServiceInfo, 10)

	if err := r.resolver.Browse(ctx, ServiceType, Domain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse services: %w", err)
	}

	go func() {
		defer close(results)

		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-entries:
				if !ok {
					return
				}

				info := &ServiceInfo{
					InstanceName: entry.Instance,
					HostName:     entry.HostName,
					Port:         entry.Port,
					IPs:          make([]string, 0),
					Meta:         make(map[string]string),
				}

				for _, ip := range entry.AddrIPv4 {
					info.IPs = append(info.IPs, ip.String())
				}

				for _, record := range entry.Text {
					parts := strings.SplitN(record, "=", 2)
					if len(parts) == 2 {
						info.Meta[parts[0]] = parts[1]
					}
				}

				if len(info.IPs) > 0 {
					logger.Sugar.Infof("[Discovery] discovered node: instance=%s ips=%v port=%d", info.InstanceName, info.IPs, info.Port)
					results <- info
				}
			}
		}
	}()

	return results, nil
}
