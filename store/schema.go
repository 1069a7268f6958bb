package store

// Schema is the SQL DDL the engine expects to already exist on MetricsDB.
// The teacher creates tables out of band too (see its vod_completed
// writer in the old pipeline coordinator); we keep the same convention and
// just document the shape here rather than taking on a migration runner.
const Schema = `
create table if not exists jobs (
	id                          text primary key,
	owner_user_id               text not null,
	status                      text not null,
	progress                    integer not null default 0,
	input_object_key            text not null,
	output_object_key           text not null default '',
	vertical_output_object_keys jsonb,
	input_duration_seconds      double precision not null default 0,
	requested_quality           text not null default '',
	final_quality               text not null default '',
	watermark_applied           boolean not null default false,
	retention_score             double precision not null default 0,
	optimization_notes          jsonb,
	render_settings             jsonb,
	analysis                    jsonb,
	priority_level              integer not null default 2,
	error                       text,
	created_at                  timestamptz not null default now(),
	updated_at                  timestamptz not null default now()
);

create table if not exists pipeline_step_state (
	job_id       text not null references jobs(id),
	step         text not null,
	status       text not null default 'pending',
	attempts     integer not null default 0,
	retries      integer not null default 0,
	started_at   timestamptz,
	completed_at timestamptz,
	last_error   text,
	meta         jsonb,
	primary key (job_id, step)
);
`
