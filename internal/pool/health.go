package pool

import "context"

// HealthJob is a scheduler.Job that pings the backend connection on an
// interval, surfacing a dead connection before a caller's checkout hits
// it (spec §4.1).
type HealthJob struct {
	pool *Pool
}

func NewHealthJob(p *Pool) *HealthJob { return &HealthJob{pool: p} }

func (j *HealthJob) Name() string { return "pool_health_check" }

func (j *HealthJob) Run(ctx context.Context) error {
	return j.pool.db.PingContext(ctx)
}
