package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Projects own items and one private workflow description
			CREATE TABLE projects (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				workflow_id VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			-- Workflow descriptions; project_id NULL means system template
			CREATE TABLE workflow_descriptions (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				project_id VARCHAR(255) REFERENCES projects(id) ON DELETE CASCADE,
				version BIGINT NOT NULL DEFAULT 1,
				initial_node_id VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_descriptions_project_id ON workflow_descriptions(project_id);

			CREATE TABLE node_descriptions (
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflow_descriptions(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				seq BIGSERIAL,
				title VARCHAR(255) NOT NULL,
				is_final BOOLEAN NOT NULL DEFAULT false,
				authorized_users JSONB NOT NULL DEFAULT '[]',
				authorized_groups JSONB NOT NULL DEFAULT '[]',
				PRIMARY KEY (workflow_id, id)
			);

			-- Node deletion must remove links first; no cascade from nodes
			CREATE TABLE link_descriptions (
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflow_descriptions(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				seq BIGSERIAL,
				title VARCHAR(255) NOT NULL,
				initial_node_id VARCHAR(255) NOT NULL,
				final_node_id VARCHAR(255) NOT NULL,
				eligible_types JSONB NOT NULL,
				PRIMARY KEY (workflow_id, id),
				FOREIGN KEY (workflow_id, initial_node_id) REFERENCES node_descriptions(workflow_id, id),
				FOREIGN KEY (workflow_id, final_node_id) REFERENCES node_descriptions(workflow_id, id)
			);

			CREATE INDEX idx_link_descriptions_initial_node ON link_descriptions(workflow_id, initial_node_id);

			CREATE TABLE items (
				id VARCHAR(255) PRIMARY KEY,
				project_id VARCHAR(255) NOT NULL,
				workflow_id VARCHAR(255) NOT NULL,
				type VARCHAR(50) NOT NULL,
				title VARCHAR(255) NOT NULL,
				version BIGINT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_items_project_id ON items(project_id);
			CREATE INDEX idx_items_workflow_id ON items(workflow_id);

			-- position 0 is the current instance when is_current, then history most recent first
			CREATE TABLE node_instances (
				id VARCHAR(255) PRIMARY KEY,
				item_id VARCHAR(255) NOT NULL REFERENCES items(id) ON DELETE CASCADE,
				node_description_id VARCHAR(255) NOT NULL,
				responsible VARCHAR(255),
				is_current BOOLEAN NOT NULL DEFAULT false,
				position INT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_node_instances_item_id ON node_instances(item_id);
			CREATE INDEX idx_node_instances_node_description_id ON node_instances(node_description_id);
		`,
		2: `
			-- Principals authorized at node descriptions
			CREATE TABLE users (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL
			);

			CREATE TABLE groups (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL
			);

			CREATE TABLE group_members (
				group_id VARCHAR(255) NOT NULL,
				user_id VARCHAR(255) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				PRIMARY KEY (group_id, user_id)
			);
		`,
	}
}
