package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create requests table
			CREATE TABLE requests (
				id UUID PRIMARY KEY,
				requester_id VARCHAR(255) NOT NULL,
				requester_name VARCHAR(255) NOT NULL DEFAULT '',
				database_kind VARCHAR(20) NOT NULL CHECK (database_kind IN ('relational', 'document')),
				instance_name VARCHAR(255) NOT NULL,
				database_name VARCHAR(255) NOT NULL,
				submission_kind VARCHAR(20) NOT NULL CHECK (submission_kind IN ('query', 'script')),
				query_content TEXT,
				script_path TEXT,
				justification TEXT NOT NULL DEFAULT '',
				team VARCHAR(255) NOT NULL DEFAULT '',
				status VARCHAR(20) NOT NULL CHECK (status IN ('PENDING', 'APPROVED', 'REJECTED', 'EXECUTED', 'FAILED')),
				approver_id VARCHAR(255),
				approved_at TIMESTAMP WITH TIME ZONE,
				rejection_reason TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				CHECK (
					(submission_kind = 'query' AND query_content IS NOT NULL AND script_path IS NULL) OR
					(submission_kind = 'script' AND script_path IS NOT NULL AND query_content IS NULL)
				)
			);

			CREATE INDEX idx_requests_requester_id ON requests(requester_id);
			CREATE INDEX idx_requests_team ON requests(team);
			CREATE INDEX idx_requests_status ON requests(status);
			CREATE INDEX idx_requests_created_at ON requests(created_at);
		`,
		2: `
			-- Create executions table, one record per request
			CREATE TABLE executions (
				id UUID PRIMARY KEY,
				request_id UUID NOT NULL UNIQUE REFERENCES requests(id),
				status VARCHAR(20) NOT NULL CHECK (status IN ('SUCCESS', 'FAILURE')),
				result_data JSONB,
				error_message TEXT,
				is_truncated BOOLEAN NOT NULL DEFAULT false,
				total_rows INTEGER,
				result_file_path TEXT,
				executed_at TIMESTAMP WITH TIME ZONE NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				CHECK (result_file_path IS NULL OR is_truncated)
			);

			CREATE INDEX idx_executions_artifacts ON executions(created_at) WHERE is_truncated AND result_file_path IS NOT NULL;
		`,
	}
}
