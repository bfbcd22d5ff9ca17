package tameng_test

import (
	"context"
	"fmt"
	"time"

	"github.com/ambiyansyah-risyal/tameng"
)

func ExampleCache_GetOrSet() {
	cache := tameng.NewCache(tameng.WithCacheName("users"))
	defer cache.Close()

	ctx := context.Background()
	fetches := 0

	for i := 0; i < 3; i++ {
		value, err := cache.GetOrSet(ctx, "user:42", func(ctx context.Context) ([]byte, error) {
			fetches++
			return []byte(`{"name":"alice"}`), nil
		}, time.Minute)
		if err != nil {
			fmt.Println("fetch failed:", err)
			return
		}
		_ = value
	}

	fmt.Println("fetches:", fetches)
	// Output: fetches: 1
}

func ExampleRateLimiter_Execute() {
	limiter := tameng.NewRateLimiter()
	defer limiter.Close()

	limiter.RegisterKeys("acme", "key-a", "key-b")

	result, err := limiter.Execute(context.Background(),
		tameng.DefaultRequestOptions("acme", "acme:search"),
		func(ctx context.Context, credential string) ([]byte, error) {
			// Call the provider's API with the selected credential here.
			return []byte("results"), nil
		})
	if err != nil {
		fmt.Println("request failed:", err)
		return
	}

	fmt.Println(string(result))
	// Output: results
}

func ExampleCachedFunc() {
	cache := tameng.NewCache(tameng.WithCacheName("profiles"))
	defer cache.Close()

	type profile struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}

	load := tameng.CachedFunc(cache,
		func(id int) string { return fmt.Sprintf("profile:%d", id) },
		5*time.Minute,
		func(ctx context.Context, id int) (profile, error) {
			return profile{ID: id, Name: "alice"}, nil
		})

	p, err := load(context.Background(), 42)
	if err != nil {
		fmt.Println("load failed:", err)
		return
	}

	fmt.Println(p.Name)
	// Output: alice
}
