package postgresql

// migrations returns the ordered schema migrations for the fluxa stores.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflows (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				owner TEXT NOT NULL,
				is_enabled BOOLEAN NOT NULL DEFAULT FALSE,
				definition JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_workflows_enabled ON workflows (is_enabled);
		`,
		2: `
			CREATE TABLE IF NOT EXISTS background_tasks (
				id TEXT PRIMARY KEY,
				task_type TEXT NOT NULL,
				payload JSONB,
				priority INTEGER NOT NULL DEFAULT 0,
				status TEXT NOT NULL DEFAULT 'pending',
				scheduled_at TIMESTAMP WITH TIME ZONE NOT NULL,
				current_retries INTEGER NOT NULL DEFAULT 0,
				max_retries INTEGER NOT NULL DEFAULT 0,
				result TEXT,
				error TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_background_tasks_due
				ON background_tasks (status, scheduled_at);
		`,
		3: `
			CREATE TABLE IF NOT EXISTS processed_events (
				event_id TEXT NOT NULL,
				workflow_id TEXT NOT NULL,
				user_id TEXT,
				summary TEXT,
				processed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				event_timestamp TIMESTAMP WITH TIME ZONE,
				PRIMARY KEY (event_id, workflow_id)
			);
			CREATE INDEX IF NOT EXISTS idx_processed_events_age ON processed_events (processed_at);
		`,
		4: `
			CREATE TABLE IF NOT EXISTS executions (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL,
				trigger_user_id TEXT,
				status TEXT NOT NULL,
				message TEXT,
				steps JSONB NOT NULL DEFAULT '[]',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at TIMESTAMP WITH TIME ZONE
			);
			CREATE INDEX IF NOT EXISTS idx_executions_workflow ON executions (workflow_id, started_at DESC);
		`,
		5: `
			CREATE TABLE IF NOT EXISTS approvals (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL,
				run_id TEXT NOT NULL,
				approver_user_id TEXT NOT NULL,
				pending_action JSONB NOT NULL,
				resume_index INTEGER NOT NULL,
				context JSONB NOT NULL DEFAULT '{}',
				deadline TIMESTAMP WITH TIME ZONE NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				resolved_at TIMESTAMP WITH TIME ZONE
			);
			CREATE INDEX IF NOT EXISTS idx_approvals_pending ON approvals (status, deadline);

			CREATE TABLE IF NOT EXISTS continuations (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL,
				run_id TEXT NOT NULL,
				resume_index INTEGER NOT NULL,
				context JSONB NOT NULL DEFAULT '{}',
				resume_at TIMESTAMP WITH TIME ZONE NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_continuations_due ON continuations (resume_at);
		`,
		6: `
			CREATE TABLE IF NOT EXISTS trigger_markers (
				workflow_id TEXT NOT NULL,
				trigger_id TEXT NOT NULL,
				last_fired TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (workflow_id, trigger_id)
			);

			CREATE TABLE IF NOT EXISTS trigger_checkpoints (
				source TEXT PRIMARY KEY,
				value TEXT NOT NULL DEFAULT ''
			);
		`,
	}
}
