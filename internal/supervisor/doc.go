// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

/*
Package supervisor runs the long-lived services of the process under a
suture v4 supervisor tree.

	RootSupervisor ("stridesync")
	├── StorageSupervisor ("storage-layer")
	│   └── StatusStoreGCService (badger backend only)
	├── PipelineSupervisor ("pipeline-layer")
	│   ├── OrchestratorService
	│   └── CoordinatorService
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

Each layer restarts its own services with suture's backoff. Supervisor
events are logged through sutureslog, which writes to the zerolog logger
via logging.NewSlogLogger.

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddPipelineService(services.NewOrchestratorService(orch))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	err = tree.Serve(ctx)

The service wrappers live in the services subpackage.
*/
package supervisor
