// Command vframe renders vertical 9:16 videos from project files and runs
// batch render queues.
//
//	vframe render project.yaml
//	vframe queue add ./inbox --output ./renders
//	vframe queue run --project project.yaml
//	vframe config set max_parallel_jobs 2
package main
