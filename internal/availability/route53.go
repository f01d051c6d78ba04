package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/route53domains"
	"github.com/aws/aws-sdk-go-v2/service/route53domains/types"

	"github.com/ignite/domainwatch/internal/config"
)

// Route53DomainsAPI is the subset of the Route 53 Domains client we call.
type Route53DomainsAPI interface {
	CheckDomainAvailability(ctx context.Context, params *route53domains.CheckDomainAvailabilityInput, optFns ...func(*route53domains.Options)) (*route53domains.CheckDomainAvailabilityOutput, error)
}

// Route53Checker asks the Route 53 Domains registrar whether a name can be
// registered. Only TLDs that Route 53 sells can be answered.
type Route53Checker struct {
	api     Route53DomainsAPI
	timeout time.Duration
}

// NewRoute53Checker loads AWS credentials from the default chain.
func NewRoute53Checker(ctx context.Context, cfg config.AvailabilityConfig) (*Route53Checker, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewRoute53CheckerWithAPI(route53domains.NewFromConfig(awsCfg), cfg.Timeout()), nil
}

// NewRoute53CheckerWithAPI wraps an existing client (tests pass a fake).
func NewRoute53CheckerWithAPI(api Route53DomainsAPI, timeout time.Duration) *Route53Checker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Route53Checker{api: api, timeout: timeout}
}

// Check implements Checker.
func (c *Route53Checker) Check(ctx context.Context, domain string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.api.CheckDomainAvailability(ctx, &route53domains.CheckDomainAvailabilityInput{
		DomainName: aws.String(domain),
	})
	if err != nil {
		return false, lookupErr(domain, err)
	}

	switch out.Availability {
	case types.DomainAvailabilityAvailable,
		types.DomainAvailabilityAvailablePreorder,
		types.DomainAvailabilityAvailableReserved:
		return true, nil
	default:
		return false, nil
	}
}
