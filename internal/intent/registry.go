package intent

const comparisonTokens = `(?P<operator>>=|<=|!=|>|<|=)`

// DocumentRegistry holds the phrasings accepted for document collections.
func DocumentRegistry() *Registry {
	return NewRegistry(
		MustCompile(TagExampleQueries, `example (?:of )?nosql quer(?:y|ies)`),
		MustCompile(TagExampleWithKeyword, `example (?:queries with|of) (?P<keywords>.+)`),
		MustCompile(TagFindAll, `find all data`),
		MustCompile(TagFindEquals, `find (?P<field>\w+)\s+(?:equals|is)\s+(?P<value>.+)`, PreserveCase()),
		MustCompile(TagFindAllWhere, `find all where (?P<field>\w+) `+comparisonTokens+` (?P<value>.+)`, PreserveCase()),
		MustCompile(TagFindWhere, `find (?P<str_field>\w+) where (?P<num_field>\w+) `+comparisonTokens+` (?P<value>.+)`, PreserveCase()),
		MustCompile(TagFindColumn, `find (?P<field>\w+)`, PreserveCase()),
		MustCompile(TagAggregateSum, `total (?P<field>\w+) by (?P<group>\w+)`, PreserveCase()),
		MustCompile(TagAggregateCount, `count by (?P<group>\w+)`, PreserveCase()),
		MustCompile(TagAggregateAvg, `average (?P<field>\w+) by (?P<group>\w+)`, PreserveCase()),
		MustCompile(TagGroupBy, `group (?P<entity>\w+) by (?P<group>\w+)`, PreserveCase()),
		MustCompile(TagSort, `sort (?P<entity>\w+) by (?P<field>\w+) (?P<order>ascending|descending)`, PreserveCase()),
		MustCompile(TagHaving, `having (?P<aggregate_type>total|average) (?P<field>\w+) `+comparisonTokens+` (?P<value>\d+(?:\.\d+)?) grouped by (?P<group>\w+)`, PreserveCase()),
		MustCompile(TagJoin, `join (?P<from_collection>\w+) with (?P<to_collection>\w+) on (?P<local_field>\w+)(?: = (?P<foreign_field>\w+))? as (?P<as_field>\w+)`, PreserveCase()),
		MustCompile(TagDistinct, `(?:distinct|unique) (?:values (?:of|for) )?(?P<field>\w+)`, PreserveCase()),
	)
}

// RelationalRegistry holds the phrasings accepted for tables. Utterances are
// lower-cased before matching, and a sort without a direction is descending.
func RelationalRegistry() *Registry {
	return NewRegistry(
		MustCompile(TagExampleQueries, `example (?:of )?sql quer(?:y|ies)`),
		MustCompile(TagExampleWithKeyword, `example (?:queries with|of) (?P<keywords>.+)`),
		MustCompile(TagFindAll, `(?:find|show|select) all (?:data|rows)`),
		MustCompile(TagHaving, `having (?P<aggregate_type>total|average) (?P<field>\w+) (?P<operator>greater|less) than (?P<value>\d+(?:\.\d+)?) group by (?P<group>\w+)`),
		MustCompile(TagAggregateSum, `total (?P<field>\w+) (?:group )?by (?P<group>\w+)`),
		MustCompile(TagAggregateAvg, `average (?P<field>\w+) (?:group )?by (?P<group>\w+)`),
		MustCompile(TagAggregateCount, `count(?: \w+)? (?:group )?by (?P<group>\w+)`),
		MustCompile(TagFindAllWhere, `(?:filter|where) (?P<field>\w+) (?:is )?(?P<operator>greater|less) than (?P<value>-?\d+(?:\.\d+)?)`),
		MustCompile(TagFindAllWhere, `(?:filter|where) (?P<field>\w+) `+comparisonTokens+` (?P<value>.+)`),
		MustCompile(TagFindEquals, `(?:filter|where) (?P<field>\w+) (?:equals|is) (?P<value>.+)`),
		MustCompile(TagSort, `(?:sort|order)(?: by)? (?P<field>\w+) (?P<order>ascending|descending|asc|desc)\b`),
		MustCompile(TagSort, `(?:sort|order)(?: by)? (?P<field>\w+)`, WithDefault(ParamOrder, "descending")),
		MustCompile(TagDistinct, `(?:distinct|unique) (?:values (?:of|for) )?(?P<field>\w+)`),
	)
}
